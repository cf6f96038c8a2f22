// Command boltping is a quick-and-dirty smoke test for the driver core:
// it connects to a cluster, runs a trivial query, and prints the routing
// table it ended up with.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	bolt "github.com/boltcluster/driver"
	"github.com/boltcluster/driver/log"
	"github.com/boltcluster/driver/structures/messages"
)

func main() {
	routers := flag.String("routers", "localhost:7687", "comma-separated bolt+routing seed addresses")
	user := flag.String("user", "neo4j", "basic auth username")
	pass := flag.String("pass", "neo4j", "basic auth password")
	verbose := flag.Bool("trace", false, "enable trace logging, including wire hex dumps")
	flag.Parse()

	if *verbose {
		log.SetLevel("trace")
	} else {
		log.SetLevel("info")
	}

	cfg := bolt.NewConfig(
		bolt.WithInitialRouters(strings.Split(*routers, ",")...),
		bolt.WithBasicAuth(*user, *pass),
	)

	driver, err := bolt.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		os.Exit(1)
	}
	defer driver.Close()

	ctx := context.Background()
	conn, err := driver.Acquire(ctx, bolt.Read)
	if err != nil {
		fmt.Fprintf(os.Stderr, "acquire: %v\n", err)
		os.Exit(1)
	}
	defer conn.Release()

	var value interface{}
	run := &printConsumer{onRecord: func(values []interface{}) {
		if len(values) > 0 {
			value = values[0]
		}
	}}
	if err := conn.Send(messages.NewRunMessage("RETURN 1", nil), run); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}
	if err := conn.Send(messages.NewPullAllMessage(), run); err != nil {
		fmt.Fprintf(os.Stderr, "pull: %v\n", err)
		os.Exit(1)
	}
	if err := conn.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "sync: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("RETURN 1 => %#v\n", value)

	table := driver.RoutingTable()
	fmt.Printf("routers: %v\n", table.Routers())
	fmt.Printf("readers: %v\n", table.Readers())
	fmt.Printf("writers: %v\n", table.Writers())
}

// printConsumer is a throwaway ResponseConsumer for the one query this
// command issues; it passes RECORD values on, turns a FAILURE into an
// error, and ignores SUCCESS and IGNORED.
type printConsumer struct {
	onRecord func(values []interface{})
}

func (p *printConsumer) OnRecord(values []interface{}) error {
	p.onRecord(values)
	return nil
}
func (p *printConsumer) OnSuccess(map[string]interface{}) error { return nil }
func (p *printConsumer) OnFailure(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}
func (p *printConsumer) OnIgnored() error { return nil }
