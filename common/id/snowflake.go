package id

import (
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID.
// The server and the worker use different node IDs.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new globally unique int64 ID using the Snowflake algorithm.
// IDs are time-ordered and unique across distributed instances.
// Falls back to node 0 when Init was never called (tests, one-off tools).
func New() int64 {
	_ = Init(0)
	return node.Generate().Int64()
}

// NewString is New formatted as a decimal string, used for event ids.
func NewString() string {
	return strconv.FormatInt(New(), 10)
}
