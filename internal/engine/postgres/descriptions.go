package postgres

var descriptions = map[string]string{
	"Limit":             "Returns a specified number of rows from a record set.",
	"Sort":              "Sorts a record set based on the specified sort key.",
	"Incremental Sort":  "Sorts a record set that is already sorted on a prefix of the sort key, one group of equal prefix values at a time.",
	"Append":            "Used in a UNION to merge multiple record sets by appending them together.",
	"Merge Append":      "Merges multiple already sorted record sets, keeping the sort order.",
	"Recursive Union":   "Evaluates a recursive common table expression by repeatedly appending the output of the recursive term.",
	"SetOp":             "Combines two record sets for INTERSECT or EXCEPT.",
	"Hash Join":         "Joins two record sets by hashing one of them (using a Hash node).",
	"Merge Join":        "Merges two record sets by first sorting them on a join key.",
	"Nested Loop":       "Merges two record sets by looping through every record in the first set and trying to find a match in the second set. All matching records are returned.",
	"Hash":              "Generates a hash table from the records in the input record set. Hash is used by Hash Join.",
	"Gather":            "Collects relevant records from the workers.",
	"Gather Merge":      "Collects relevant records from the workers in ordered manner.",
	"Unique":            "Removes duplicated rows from a record set.",
	"Result":            "A relation primitive.",
	"WindowAgg":         "Calculates window functions according to the OVER clauses.",
	"Materialize":       "Stores its input in memory so it can be read several times.",
	"Memoize":           "Caches the results of the inner side of a nested loop by cache key.",
	"Seq Scan":          "Finds relevant records by sequentially scanning the input record set. When reading from a table, Seq Scans (unlike Index Scans) perform a single read operation (only the table is read).",
	"Index Scan":        "Finds relevant records based on an index. Index Scans perform 2 read operations: one to read the index and another to read the actual value from the table.",
	"Index Only Scan":   "Finds relevant records based on an index. Index Only Scans perform a single read operation from the index and do not read from the corresponding table.",
	"Bitmap Heap Scan":  "Searches through the pages returned by the Bitmap Index Scan for relevant rows.",
	"Bitmap Index Scan": "Uses a bitmap index (one bit per page) to find all relevant pages. Results of this node are fed to the Bitmap Heap Scan.",
	"Subquery Scan":     "Scans the output of a sub-query in the range table.",
	"CTE Scan":          "Scans the output of a common table expression.",
	"Function Scan":     "Scans the rows returned by a set-returning function.",
	"Aggregate":         "Groups records together based on a GROUP BY or aggregate function (e.g. sum()).",
	"HashAggregate":     "Groups records together based on a GROUP BY or aggregate function (e.g. sum()). Hash Aggregate uses a hash to first organize the records by a key.",
	"GroupAggregate":    "Groups records that arrive sorted on the grouping key and aggregates each group.",
	"Group":             "Groups records that arrive sorted on the grouping key.",
	"Where":             "Filters the relation to hold only relevant records.",
	"Having":            "Filters the groups to hold only relevant records.",
}
