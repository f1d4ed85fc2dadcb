// Use: loads a tree into a migrated datastore and times a cascading move of its largest subtree.
//
//	go run ./scripts/loaddata.go <engine> <uri> <total nodes> <fanout>

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/openfga/mpath/cmd/util"
	"github.com/openfga/mpath/pkg/config"
	"github.com/openfga/mpath/pkg/logger"
	"github.com/openfga/mpath/pkg/storage"
	"github.com/openfga/mpath/pkg/tree"
)

const writeConcurrency = 8

func main() {
	if len(os.Args) != 5 {
		log.Panic("usage: loaddata <engine> <uri> <total nodes> <fanout>")
	}
	argEngine := os.Args[1]
	argURI := os.Args[2]
	argTotalNodes, err := strconv.Atoi(os.Args[3])
	if err != nil {
		log.Panic(err)
	}
	argFanout, err := strconv.Atoi(os.Args[4])
	if err != nil || argFanout < 1 {
		log.Panic("fanout must be a positive integer")
	}

	ctx := context.Background()

	ds, err := util.OpenDatastore(config.DatastoreConfig{Engine: argEngine, URI: argURI, MaxOpenConns: writeConcurrency}, logger.NewNoopLogger())
	if err != nil {
		log.Panic(err)
	}
	defer ds.Close()

	collection := "load_" + ulid.Make().String()
	t, err := tree.New(ds, collection)
	if err != nil {
		log.Panic(err)
	}

	start := time.Now()
	roots, err := load(ctx, t, argTotalNodes, argFanout)
	if err != nil {
		log.Panic(err)
	}
	fmt.Printf("loaded %d nodes into collection %s in %s\n", argTotalNodes, collection, time.Since(start))

	if len(roots) < 2 {
		return
	}

	moved, target := roots[0], roots[1]
	moved.Parent = target.ID

	start = time.Now()
	if err := t.Save(ctx, moved); err != nil {
		log.Panic(err)
	}
	fmt.Printf("moved subtree of %s under %s in %s\n", moved.ID, target.ID, time.Since(start))
}

// load saves total nodes as a forest of argFanout roots, each node having up to fanout
// children. The nodes of a level are saved concurrently once the previous level is stored.
func load(ctx context.Context, t *tree.Tree, total, fanout int) ([]*storage.Node, error) {
	var roots, level []*storage.Node
	for i := 0; i < fanout && i < total; i++ {
		roots = append(roots, &storage.Node{Name: fmt.Sprintf("root-%d", i)})
	}
	level = roots
	saved := 0

	for len(level) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(writeConcurrency)
		for _, n := range level {
			g.Go(func() error {
				return t.Save(gctx, n)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		saved += len(level)

		var next []*storage.Node
		for _, parent := range level {
			for i := 0; i < fanout && saved+len(next) < total; i++ {
				next = append(next, &storage.Node{Parent: parent.ID, Name: fmt.Sprintf("%s-%d", parent.Name, i)})
			}
		}
		level = next
	}

	return roots, nil
}
