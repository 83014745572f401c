// Package engine executes directory operations against virtual entries
// assembled from several physical sources.
//
// # Overview
//
// Each entry mapping of a registry is analyzed once into a join graph over
// its sources. The engine uses that graph to:
//
//   - Resolve searches: discover the primary keys of matching entries,
//     load their rows in batches, merge them and attach parents
//   - Write entries: translate entry attributes into source fields and
//     write the sources along the graph, propagating join values
//   - Verify credentials against the primary source row
//
// # Creating an Engine
//
//	conns := connector.NewSet()
//	conns.Register("mem", memory.New())
//
//	e, err := engine.New(engine.Options{
//	    Registry:   reg,
//	    Connectors: conns,
//	    Logger:     logging.NewDefault(),
//	})
//	if err != nil {
//	    return err
//	}
//	e.Start()
//	defer e.Close(context.Background())
//
// # Searching
//
// Search returns a stream. Entries are produced by the worker pool while
// the caller reads them:
//
//	res, err := e.Search(ctx, &engine.SearchRequest{
//	    BaseDN: "ou=users,dc=example,dc=com",
//	    Scope:  directory.ScopeSubtree,
//	    Filter: filter.MustParse("(name=alice)"),
//	})
//	if err != nil {
//	    return err
//	}
//	defer res.Close()
//	for res.Next() {
//	    fmt.Println(res.Entry().LDIF())
//	}
//	return res.Err()
//
// # Concurrency
//
// Operations lock the physical sources they read or write through a lock
// manager with bounded waits. Reads share locks; a write holds its
// mapping's sources and the addressed DNs exclusively. A lock that cannot
// be taken in time fails the operation with Busy.
//
// # Failures
//
// Writes are not transactional. A source failure stops the operation and
// earlier writes stay in place. Rows already missing from a source are
// skipped during deletes and updates.
package engine
