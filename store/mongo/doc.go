// Package mongo implements store.Store on MongoDB using the official v2
// driver. Request logs are keyed by request_id and worker rows by
// worker_id; statistics are computed with aggregation pipelines.
//
// Either let the store own the client:
//
//	s, err := mongo.Open(ctx, "mongodb://localhost:27017", "compute")
//	defer s.Close()
//
// or pass a *mongo.Database whose client the caller manages:
//
//	s := mongo.New(client.Database("compute"))
package mongo
