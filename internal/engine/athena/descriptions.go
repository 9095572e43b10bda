package athena

var descriptions = map[string]string{
	"Output":               "Returns the final result set to the client.",
	"Limit":                "Returns a specified number of rows from a record set.",
	"LimitPartial":         "Returns a specified number of rows from each worker's part of a record set.",
	"TopN":                 "Returns the first rows of a record set according to a sort key.",
	"TopNPartial":          "Returns the first rows of each worker's part of a record set according to a sort key.",
	"PartialSort":          "Sorts each worker's part of a record set based on the specified sort key.",
	"Sort":                 "Sorts a record set based on the specified sort key.",
	"Distinct":             "Removes duplicated rows from a record set.",
	"DistinctLimit":        "Returns a specified number of distinct rows from a record set.",
	"DistinctLimitPartial": "Returns a specified number of distinct rows from each worker's part of a record set.",
	"Unnest":               "Expands arrays and maps into rows.",
	"Window":               "Calculates window functions according to the OVER clauses.",
	"LocalExchange":        "Redistributes rows between the threads of a worker.",
	"LocalMerge":           "Merges sorted streams within a worker, keeping the sort order.",
	"Filter":               "Filters the relation to hold only relevant records.",
	"GroupId":              "Replicates rows for each grouping set of a GROUPING SETS, CUBE or ROLLUP.",
	"InnerJoin":            "Returns the pairs of rows from both inputs that satisfy the join condition.",
	"LeftJoin":             "Returns all rows of the left input and matching rows of the right input.",
	"RightJoin":            "Returns all rows of the right input and matching rows of the left input.",
	"CrossJoin":            "Returns the cartesian product of both inputs.",
	"SemiJoin":             "Marks the rows of the left input that have a match in the right input.",
	"Aggregate":            "Groups records together based on a GROUP BY or aggregate function (e.g. sum()).",
	"MarkDistinct":         "Marks the first occurrence of each distinct value for DISTINCT aggregates.",
	"EnforceSingleRow":     "Fails the query unless its input holds exactly one row.",
	"Union":                "Appends the rows of several inputs.",
	"TableScan":            "Reads all rows of a table.",
	"ScanFilterProject":    "Reads a table, filters its rows and computes the projected columns in one step.",
	"ScanProject":          "Reads a table and computes the projected columns in one step.",
	"ScanFilter":           "Reads a table and filters its rows in one step.",
	"Values":               "Produces rows from a literal VALUES list.",
	"Project":              "Computes the projected columns.",
	"RemoteSource":         "Reads the output of other fragments over the network.",
	"RemoteMerge":          "Reads the sorted output of other fragments over the network, keeping the sort order.",
	"Where":                "Filters the relation to hold only relevant records.",
}
