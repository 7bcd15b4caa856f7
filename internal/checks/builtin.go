package checks

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/controls/internal/engine"
	"github.com/roach88/controls/internal/model"
	"github.com/roach88/controls/internal/queryir"
)

// Missing flags rows whose column is NULL or blank. The value is the cell.
func Missing(s Spec) engine.CheckFunc {
	s = s.WithDefaults()
	return scan(s, func(v model.Value) bool {
		return model.IsNull(v) || strings.TrimSpace(v.String()) == ""
	})
}

// Range flags rows whose column is outside [Min, Max] or not a number.
// NULL cells are not flagged; pair with a missing check for that.
func Range(s Spec) engine.CheckFunc {
	s = s.WithDefaults()
	return scan(s, func(v model.Value) bool {
		if model.IsNull(v) {
			return false
		}
		f, ok := numeric(v)
		if !ok {
			return true
		}
		return (s.Min != nil && f < *s.Min) || (s.Max != nil && f > *s.Max)
	})
}

// scan reads the source rows of the partition and applies fires per row.
func scan(s Spec, fires func(model.Value) bool) engine.CheckFunc {
	return func(ctx context.Context, env engine.Env) (*model.Table, error) {
		q := queryir.Select{
			From:    s.Source,
			Columns: []string{s.EntityColumn, s.DeliveryColumn, s.Column},
			OrderBy: []string{s.EntityColumn, s.DeliveryColumn},
		}
		src, err := env.Conn.Query(ctx, q, env.Partition.Select())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s.Source, err)
		}

		out := model.NewTable(model.ResultColumns...)
		for i := 0; i < src.Len(); i++ {
			v := src.Get(i, s.Column)
			out.Rows = append(out.Rows, []model.Value{
				src.Get(i, s.EntityColumn),
				src.Get(i, s.DeliveryColumn),
				model.String(s.ID),
				v,
				model.Bool(fires(v)),
			})
		}
		return out, nil
	}
}

// numeric reads v as a number. NaN is not a number here, whether stored as
// a float or spelled out as text.
func numeric(v model.Value) (float64, bool) {
	switch val := v.(type) {
	case model.Int:
		return float64(val), true
	case model.Float:
		return float64(val), !math.IsNaN(float64(val))
	case model.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(string(val), ",", ".")), 64)
		return f, err == nil && !math.IsNaN(f)
	}
	return 0, false
}
