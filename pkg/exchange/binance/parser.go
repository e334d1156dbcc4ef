package binance

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"
	"github.com/rs/zerolog"

	"binancewallet/pkg/core"
)

// decoder keeps numbers as json.Number so amounts reach apd without a float64 round trip.
var decoder = sonic.Config{UseNumber: true}.Froze()

// SnapshotParser converts an accountSnapshot response body into a canonical Snapshot.
type SnapshotParser struct {
	logger zerolog.Logger
}

// NewSnapshotParser creates a new SnapshotParser instance.
func NewSnapshotParser(logger zerolog.Logger) *SnapshotParser {
	return &SnapshotParser{logger: logger}
}

// Parse extracts the latest snapshot from body. The exchange returns snapshots in
// ascending time order, so the last element of snapshotVos is used.
// On error nothing is returned; callers keep their previous state.
func (p *SnapshotParser) Parse(body []byte) (*core.Snapshot, error) {
	var root any
	if err := decoder.Unmarshal(body, &root); err != nil {
		return nil, core.NewMalformedError("could not parse response as JSON", err)
	}

	obj, ok := root.(map[string]any)
	if !ok {
		return nil, core.NewMissingFieldError("snapshotVos")
	}
	vos, ok := obj["snapshotVos"].([]any)
	if !ok || len(vos) == 0 {
		return nil, core.NewMissingFieldError("snapshotVos")
	}

	latest, ok := vos[len(vos)-1].(map[string]any)
	if !ok {
		return nil, core.NewMissingFieldError("snapshotVos")
	}
	p.checkOrder(vos)

	updateTime, err := millisField(latest, "updateTime", "updateTime")
	if err != nil {
		return nil, err
	}

	data, ok := latest["data"].(map[string]any)
	if !ok {
		return nil, core.NewMissingFieldError("data")
	}

	totalBTC, err := decimalField(data, "totalAssetOfBtc", "data.totalAssetOfBtc")
	if err != nil {
		return nil, err
	}

	rawBalances, ok := data["balances"].([]any)
	if !ok {
		return nil, core.NewMissingFieldError("data.balances")
	}

	balances := make([]core.Balance, 0, len(rawBalances))
	for i, raw := range rawBalances {
		b, err := parseBalance(raw, fmt.Sprintf("data.balances[%d]", i))
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}

	total, err := toFloat(totalBTC, "data.totalAssetOfBtc")
	if err != nil {
		return nil, err
	}

	return &core.Snapshot{
		Timestamp: time.UnixMilli(updateTime).UTC(),
		TotalBTC:  total,
		Balances:  balances,
	}, nil
}

// checkOrder logs when the last snapshot is not the most recent one.
func (p *SnapshotParser) checkOrder(vos []any) {
	last, ok := vos[len(vos)-1].(map[string]any)
	if !ok {
		return
	}
	lastTime, err := millisField(last, "updateTime", "updateTime")
	if err != nil {
		return
	}
	for i, v := range vos[:len(vos)-1] {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if t, err := millisField(m, "updateTime", "updateTime"); err == nil && t > lastTime {
			p.logger.Debug().
				Int("index", i).
				Int64("update_time", t).
				Int64("last_update_time", lastTime).
				Msg("snapshotVos not in ascending order, using last element")
			return
		}
	}
}

func parseBalance(raw any, path string) (core.Balance, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return core.Balance{}, core.NewMissingFieldError(path)
	}

	asset, ok := obj["asset"].(string)
	if !ok {
		return core.Balance{}, core.NewMissingFieldError(path + ".asset")
	}
	free, err := decimalField(obj, "free", path+".free")
	if err != nil {
		return core.Balance{}, err
	}
	locked, err := decimalField(obj, "locked", path+".locked")
	if err != nil {
		return core.Balance{}, err
	}

	var sum apd.Decimal
	if _, err := apd.BaseContext.Add(&sum, free, locked); err != nil {
		return core.Balance{}, core.NewMalformedError(fmt.Sprintf("calculate %s total", path), err)
	}
	total, err := toFloat(&sum, path+".total")
	if err != nil {
		return core.Balance{}, err
	}

	return core.Balance{Asset: asset, Total: total}, nil
}

// decimalField reads a number given either as a JSON number or a numeric string.
func decimalField(obj map[string]any, key, path string) (*apd.Decimal, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, core.NewMissingFieldError(path)
	}

	var s string
	switch val := v.(type) {
	case json.Number:
		s = val.String()
	case string:
		s = val
	default:
		return nil, core.NewMissingFieldError(path)
	}

	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, core.NewMalformedError(fmt.Sprintf("%s is not a number: %q", path, s), err)
	}
	if d.Form != apd.Finite {
		return nil, core.NewMalformedError(fmt.Sprintf("%s is not a finite number: %q", path, s), nil)
	}
	return d, nil
}

func millisField(obj map[string]any, key, path string) (int64, error) {
	d, err := decimalField(obj, key, path)
	if err != nil {
		return 0, err
	}
	ms, err := d.Int64()
	if err != nil {
		return 0, core.NewMalformedError(fmt.Sprintf("%s is not an integer: %s", path, d), err)
	}
	return ms, nil
}

func toFloat(d *apd.Decimal, path string) (float64, error) {
	f, err := d.Float64()
	if err != nil {
		return 0, core.NewMalformedError(fmt.Sprintf("%s out of range: %s", path, d), err)
	}
	return f, nil
}
