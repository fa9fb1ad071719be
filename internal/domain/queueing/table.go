package queueing

// Groenveld (2007) Table V: E2/E2/n waiting factor by berth utilisation (rows)
// and number of servers (columns, n = 1..10).
var tableUtilisation = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}

var tableWaitingFactor = [][]float64{
	{0.0166, 0.0006, 0, 0, 0, 0, 0, 0, 0, 0},
	{0.0604, 0.0065, 0.0011, 0.0002, 0, 0, 0, 0, 0, 0},
	{0.1310, 0.0235, 0.0062, 0.0019, 0.0007, 0.0002, 0.0001, 0, 0, 0},
	{0.2355, 0.0576, 0.0205, 0.0085, 0.0039, 0.0019, 0.0009, 0.0005, 0.0003, 0.0001},
	{0.3904, 0.1181, 0.0512, 0.0532, 0.0142, 0.0082, 0.0050, 0.0031, 0.0020, 0.0013},
	{0.6306, 0.2222, 0.1103, 0.0639, 0.0400, 0.0265, 0.0182, 0.0128, 0.0093, 0.0069},
	{1.0391, 0.4125, 0.2275, 0.1441, 0.0988, 0.0712, 0.0532, 0.0407, 0.0319, 0.0258},
	{1.8653, 0.8300, 0.4600, 0.3300, 0.2300, 0.1900, 0.1400, 0.1200, 0.0900, 0.0900},
	{4.3590, 2.0000, 1.2000, 0.9200, 0.6500, 0.5700, 0.4400, 0.4000, 0.3200, 0.3000},
}

// column returns the table column for servers (1-based).
func column(servers int) []float64 {
	out := make([]float64, len(tableWaitingFactor))
	for i, row := range tableWaitingFactor {
		out[i] = row[servers-1]
	}
	return out
}
