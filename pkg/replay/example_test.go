package replay_test

import (
	"fmt"
	"log"
	"os"

	"github.com/crimson-sun/replay/pkg/replay"
)

func Example() {
	dir, err := os.MkdirTemp("", "replay-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	s, err := replay.New(replay.WithDir(dir), replay.WithMode(replay.ModeFull))
	if err != nil {
		log.Fatal(err)
	}

	s.Capture(&replay.Frame{
		TimestampMs: 1700000000000,
		Width:       390,
		Height:      844,
		Root: &replay.Node{ID: 16, Children: []replay.Node{
			{ID: 17, Kind: replay.Text{Content: "Welcome"}},
		}},
	})
	s.Close()

	events, err := s.ReadAll()
	if err != nil {
		log.Fatal(err)
	}
	for _, e := range events {
		fmt.Println(e.Type)
	}
	// Output:
	// meta
	// full_snapshot
}
