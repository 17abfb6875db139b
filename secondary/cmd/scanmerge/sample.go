package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/couchbase/scanmerge/secondary/rowcodec"
)

// eventsSchema is the sample table: events of an account, newest first.
func eventsSchema() (*rowcodec.Schema, error) {
	return rowcodec.NewSchema(
		rowcodec.Column{Name: "account", Type: rowcodec.TypeString, Key: true},
		rowcodec.Column{Name: "at", Type: rowcodec.TypeTimestamp, Key: true, Descending: true},
		rowcodec.Column{Name: "seq", Type: rowcodec.TypeInt64, Key: true},
		rowcodec.Column{Name: "kind", Type: rowcodec.TypeString, Default: "call"},
		rowcodec.Column{Name: "amount", Type: rowcodec.TypeDouble},
		rowcodec.Column{Name: "billed", Type: rowcodec.TypeBool, Default: false},
	)
}

var sampleKinds = []string{"call", "sms", "fax", "video"}

func sampleRows(n, accounts int, seed int64) []map[string]interface{} {
	if accounts <= 0 {
		accounts = 1
	}
	rnd := rand.New(rand.NewSource(seed))
	start := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		row := map[string]interface{}{
			"account": fmt.Sprintf("AC%04d", rnd.Intn(accounts)),
			"at":      start.Add(time.Duration(rnd.Intn(30*24*60)) * time.Minute),
			"seq":     int64(i),
			"amount":  float64(rnd.Intn(10000)) / 100,
		}
		if k := rnd.Intn(len(sampleKinds) + 1); k < len(sampleKinds) {
			row["kind"] = sampleKinds[k]
		}
		if rnd.Intn(2) == 0 {
			row["billed"] = true
		}
		rows = append(rows, row)
	}
	return rows
}
