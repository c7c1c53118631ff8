package report

import (
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrMalformed is returned when a decoded struct lacks a required field.
var ErrMalformed = errors.New("report: malformed")

// Encode marshals r as a protobuf google.protobuf.Struct.
func Encode(r *Report) ([]byte, error) {
	s, err := ToProto(r)
	if err != nil {
		return nil, err
	}
	b, err := proto.Marshal(s)
	return b, errors.Wrap(err, "report: marshal")
}

func Decode(b []byte) (*Report, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrap(err, "report: unmarshal")
	}
	return FromProto(&s)
}

// JSON renders r through protojson, for humans and log pipelines.
func JSON(r *Report) ([]byte, error) {
	s, err := ToProto(r)
	if err != nil {
		return nil, err
	}
	return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
}

// ToProto converts r into a structpb.Struct. 64-bit integers and durations
// are carried as strings so they survive the float64 number type.
func ToProto(r *Report) (*structpb.Struct, error) {
	sections := make([]any, 0, len(r.Sections))
	for _, sec := range r.Sections {
		metrics := make([]any, 0, len(sec.Metrics))
		for _, m := range sec.Metrics {
			metrics = append(metrics, map[string]any{
				"name":  m.Name,
				"value": m.Value,
				"unit":  m.Unit,
			})
		}
		notes := make([]any, 0, len(sec.Notes))
		for _, n := range sec.Notes {
			notes = append(notes, n)
		}
		sections = append(sections, map[string]any{
			"number":   sec.Number,
			"title":    sec.Title,
			"duration": sec.Duration.String(),
			"metrics":  metrics,
			"notes":    notes,
		})
	}

	s, err := structpb.NewStruct(map[string]any{
		"id":         strconv.FormatUint(r.ID, 10),
		"instance":   r.Instance,
		"started_at": r.StartedAt.UTC().Format(time.RFC3339Nano),
		"duration":   r.Duration.String(),
		"host": map[string]any{
			"hostname":   r.Host.Hostname,
			"go_version": r.Host.GoVersion,
			"num_cpu":    r.Host.NumCPU,
			"rss_bytes":  strconv.FormatUint(r.Host.RSSBytes, 10),
		},
		"sections": sections,
	})
	return s, errors.Wrap(err, "report: build struct")
}

// FromProto is the inverse of ToProto.
func FromProto(s *structpb.Struct) (*Report, error) {
	m := s.AsMap()
	r := &Report{}
	var err error

	if r.ID, err = strconv.ParseUint(str(m, "id"), 10, 64); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "id: %v", err)
	}
	r.Instance = str(m, "instance")
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, str(m, "started_at")); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "started_at: %v", err)
	}
	if r.Duration, err = time.ParseDuration(str(m, "duration")); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "duration: %v", err)
	}

	if h, ok := m["host"].(map[string]any); ok {
		r.Host.Hostname = str(h, "hostname")
		r.Host.GoVersion = str(h, "go_version")
		r.Host.NumCPU = int(num(h, "num_cpu"))
		r.Host.RSSBytes, _ = strconv.ParseUint(str(h, "rss_bytes"), 10, 64)
	}

	raw, _ := m["sections"].([]any)
	for i, item := range raw {
		sm, ok := item.(map[string]any)
		if !ok {
			return nil, errors.Wrapf(ErrMalformed, "section %d", i)
		}
		sec := Section{
			Number: int(num(sm, "number")),
			Title:  str(sm, "title"),
		}
		if sec.Duration, err = time.ParseDuration(str(sm, "duration")); err != nil {
			return nil, errors.Wrapf(ErrMalformed, "section %d duration: %v", i, err)
		}
		metrics, _ := sm["metrics"].([]any)
		for _, mi := range metrics {
			mm, ok := mi.(map[string]any)
			if !ok {
				continue
			}
			sec.Metrics = append(sec.Metrics, Metric{
				Name:  str(mm, "name"),
				Value: num(mm, "value"),
				Unit:  str(mm, "unit"),
			})
		}
		notes, _ := sm["notes"].([]any)
		for _, n := range notes {
			if line, ok := n.(string); ok {
				sec.Notes = append(sec.Notes, line)
			}
		}
		r.Sections = append(r.Sections, sec)
	}
	return r, nil
}

func str(m map[string]any, k string) string {
	v, _ := m[k].(string)
	return v
}

func num(m map[string]any, k string) float64 {
	v, _ := m[k].(float64)
	return v
}
