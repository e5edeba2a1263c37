package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var ingestFlags struct {
	api         string
	collection  string
	items       string
	token       string
	concurrency int
	upsert      bool
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load a collection and its items into a running server",
	Long: `Ingest posts a collection document and then its items to a STAC API
with the transaction extension enabled.

The items file is either a FeatureCollection or newline-delimited items.

Example:
  stac-server ingest --api http://localhost:8080 \
    --collection sentinel.json --items items.ndjson --concurrency 8`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := ingester{
			api:         strings.TrimRight(ingestFlags.api, "/"),
			token:       ingestFlags.token,
			concurrency: ingestFlags.concurrency,
			upsert:      ingestFlags.upsert,
			client:      &http.Client{Timeout: 30 * time.Second},
		}
		n, err := in.run(cmd.Context(), ingestFlags.collection, ingestFlags.items)
		fmt.Fprintf(cmd.OutOrStdout(), "ingested %d items\n", n)
		return err
	},
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestFlags.api, "api", "http://localhost:8080", "base URL of the STAC API")
	f.StringVar(&ingestFlags.collection, "collection", "", "collection JSON file")
	f.StringVar(&ingestFlags.items, "items", "", "items file: FeatureCollection or newline-delimited items")
	f.StringVar(&ingestFlags.token, "token", os.Getenv("STAC_TOKEN"), "bearer token for transaction routes")
	f.IntVar(&ingestFlags.concurrency, "concurrency", 4, "parallel item requests")
	f.BoolVar(&ingestFlags.upsert, "upsert", false, "PUT items instead of POST so existing ones are replaced")
	ingestCmd.MarkFlagRequired("collection")
}

type ingester struct {
	api         string
	token       string
	concurrency int
	upsert      bool
	client      *http.Client
}

// run creates the collection, tolerating one that already exists, then
// sends every item. It returns the number of items written.
func (in *ingester) run(ctx context.Context, collectionFile, itemsFile string) (int, error) {
	raw, err := os.ReadFile(collectionFile)
	if err != nil {
		return 0, err
	}
	var coll struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &coll); err != nil || coll.ID == "" {
		return 0, fmt.Errorf("%s: not a collection document", collectionFile)
	}
	status, err := in.send(ctx, http.MethodPost, in.api+"/collections", raw)
	switch {
	case err != nil && status == http.StatusConflict:
		log.Printf("collection %s exists", coll.ID)
	case err != nil:
		return 0, fmt.Errorf("create collection %s: %w", coll.ID, err)
	}
	if itemsFile == "" {
		return 0, nil
	}

	items, err := readItems(itemsFile)
	if err != nil {
		return 0, err
	}

	base := in.api + "/collections/" + url.PathEscape(coll.ID) + "/items"
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(in.concurrency, 1))
	for i, it := range items {
		g.Go(func() error {
			method, target := http.MethodPost, base
			if in.upsert {
				var doc struct {
					ID string `json:"id"`
				}
				if err := json.Unmarshal(it, &doc); err != nil || doc.ID == "" {
					return fmt.Errorf("item %d: missing id", i)
				}
				method, target = http.MethodPut, base+"/"+url.PathEscape(doc.ID)
			}
			if _, err := in.send(gctx, method, target, it); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			done.Add(1)
			return nil
		})
	}
	err = g.Wait()
	return int(done.Load()), err
}

// send issues one JSON request and returns the status code. Non-2xx
// responses are returned as errors carrying the server's detail message.
func (in *ingester) send(ctx context.Context, method, target string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if in.token != "" {
		req.Header.Set("Authorization", "Bearer "+in.token)
	}
	resp, err := in.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	var e struct {
		Detail string `json:"detail"`
	}
	json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e)
	if e.Detail == "" {
		e.Detail = http.StatusText(resp.StatusCode)
	}
	return resp.StatusCode, fmt.Errorf("%s %s: %d %s", method, target, resp.StatusCode, e.Detail)
}

// readItems splits an items file into raw item documents.
func readItems(path string) ([]json.RawMessage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if trimmed[0] == '{' && json.Unmarshal(trimmed, &fc) == nil {
		switch fc.Type {
		case "FeatureCollection":
			return fc.Features, nil
		case "Feature":
			return []json.RawMessage{trimmed}, nil
		}
	}

	var items []json.RawMessage
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for line := 1; sc.Scan(); line++ {
		l := bytes.TrimSpace(sc.Bytes())
		if len(l) == 0 {
			continue
		}
		if !json.Valid(l) {
			return nil, fmt.Errorf("%s:%d: invalid JSON", path, line)
		}
		items = append(items, json.RawMessage(bytes.Clone(l)))
	}
	return items, sc.Err()
}
