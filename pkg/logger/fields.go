package logger

import "go.uber.org/zap"

// Collection is the field naming the tree collection an entry is about.
func Collection(name string) zap.Field {
	return zap.String("collection", name)
}

// NodeID is the field naming the node an entry is about.
func NodeID(id string) zap.Field {
	return zap.String("node_id", id)
}
