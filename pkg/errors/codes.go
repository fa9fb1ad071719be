package errors

import "net/http"

// ErrorCode identifies a failure category as MODULE_NNN.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Shared by every layer.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
)

// Simulation runs and their scenarios.
const (
	ErrCodeScenarioInvalid    ErrorCode = "SIM_001"
	ErrCodeSimulationNotFound ErrorCode = "SIM_002"
	ErrCodeForecastFailed     ErrorCode = "SIM_003"
)

// Investment planner.
const (
	ErrCodePlannerConfigInvalid ErrorCode = "PLAN_001"
	ErrCodeExpansionDiverged    ErrorCode = "PLAN_002"
)

// Queueing model.
const (
	ErrCodeServerCountOutOfRange ErrorCode = "QUEUE_001"
	ErrCodeFitFailed             ErrorCode = "QUEUE_002"
)

// Cash flows and portfolio.
const (
	ErrCodeHorizonInvalid ErrorCode = "FIN_001"
)

// Short names used by the constructors, plus the two codes GetCode reports
// for errors that carry none.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

type codeInfo struct {
	status  int
	message string
}

var codeTable = map[ErrorCode]codeInfo{
	ErrCodeInternal:           {http.StatusInternalServerError, "internal server error"},
	ErrCodeBadRequest:         {http.StatusBadRequest, "bad request"},
	ErrCodeNotFound:           {http.StatusNotFound, "resource not found"},
	ErrCodeConflict:           {http.StatusConflict, "resource conflict"},
	ErrCodeServiceUnavailable: {http.StatusServiceUnavailable, "service unavailable"},
	ErrCodeTimeout:            {http.StatusGatewayTimeout, "request timeout"},
	ErrCodeValidation:         {http.StatusUnprocessableEntity, "validation failed"},
	ErrCodeSerialization:      {http.StatusInternalServerError, "serialization failed"},
	ErrCodeDatabaseError:      {http.StatusInternalServerError, "database error"},
	ErrCodeCacheError:         {http.StatusInternalServerError, "cache error"},

	ErrCodeScenarioInvalid:    {http.StatusBadRequest, "invalid scenario"},
	ErrCodeSimulationNotFound: {http.StatusNotFound, "simulation run not found"},
	ErrCodeForecastFailed:     {http.StatusUnprocessableEntity, "forecast unavailable"},

	ErrCodePlannerConfigInvalid: {http.StatusBadRequest, "invalid planner configuration"},
	ErrCodeExpansionDiverged:    {http.StatusInternalServerError, "berth expansion did not converge"},

	ErrCodeServerCountOutOfRange: {http.StatusUnprocessableEntity, "server count outside reference table"},
	ErrCodeFitFailed:             {http.StatusInternalServerError, "polynomial fit failed"},

	ErrCodeHorizonInvalid: {http.StatusBadRequest, "invalid simulation horizon"},
}

// HTTPStatusForCode returns the response status for code, 500 when unknown.
func HTTPStatusForCode(code ErrorCode) int {
	if info, ok := codeTable[code]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the message shown when an error has to be
// reported without its own text.
func DefaultMessageForCode(code ErrorCode) string {
	if info, ok := codeTable[code]; ok {
		return info.message
	}
	return "unknown error"
}

// IsServerError reports whether code maps to a 5xx status.
func IsServerError(code ErrorCode) bool {
	return HTTPStatusForCode(code) >= http.StatusInternalServerError
}
