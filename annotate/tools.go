package annotate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.aimuz.me/glance/live"
	"go.aimuz.me/glance/metrics"
)

// Tool names understood by HandleToolCall.
const (
	ToolMarkScreen = "mark_screen"
	ToolClearMarks = "clear_marks"
)

const (
	defaultRectSize     = 100.0
	defaultCircleRadius = 50.0
)

// ToolDeclarations returns the function declarations advertised to the model.
func ToolDeclarations() []live.FunctionDeclaration {
	number := func(desc string) *live.Schema {
		return &live.Schema{Type: live.TypeNumber, Description: desc}
	}
	point := &live.Schema{
		Type: live.TypeObject,
		Properties: map[string]*live.Schema{
			"x": number("Horizontal position, 0 to 1000."),
			"y": number("Vertical position, 0 to 1000."),
		},
		Required: []string{"x", "y"},
	}
	mark := &live.Schema{
		Type: live.TypeObject,
		Properties: map[string]*live.Schema{
			"type": {
				Type:        live.TypeString,
				Description: "Shape to draw.",
				Enum:        []string{string(KindRect), string(KindCircle), string(KindArrow), string(KindPath), string(KindText)},
			},
			"x":      number("Anchor x, 0 to 1000. Center for rect and circle, start for arrow and path."),
			"y":      number("Anchor y, 0 to 1000."),
			"width":  number("Rect width, circle radius, or arrow x delta."),
			"height": number("Rect height or arrow y delta."),
			"label":  {Type: live.TypeString, Description: "Text for text marks."},
			"points": {Type: live.TypeArray, Description: "Points for path and arrow marks.", Items: point},
		},
		Required: []string{"type", "x", "y"},
	}
	return []live.FunctionDeclaration{
		{
			Name: ToolMarkScreen,
			Description: "Draw annotations on the user's screen to point things out. " +
				"Coordinates are normalized so the screen spans 0 to 1000 on both axes.",
			Parameters: &live.Schema{
				Type:       live.TypeObject,
				Properties: map[string]*live.Schema{"marks": {Type: live.TypeArray, Items: mark}},
				Required:   []string{"marks"},
			},
		},
		{
			Name:        ToolClearMarks,
			Description: "Remove every annotation from the user's screen.",
			Parameters:  &live.Schema{Type: live.TypeObject},
		},
	}
}

// HandleToolCall applies a tool call and returns the acknowledgment to send
// back. The result always carries the call's id, including for unknown tools.
func (e *Engine) HandleToolCall(call live.ToolCall) live.ToolResult {
	res := live.ToolResult{ID: call.ID, Name: call.Name}

	switch call.Name {
	case ToolMarkScreen:
		marks, dropped := parseMarks(call.Args)
		added := e.Add(marks...)
		metrics.RecordToolCall(call.Name, "ok")
		metrics.RecordMarksDropped(dropped)
		if dropped > 0 {
			slog.Warn("dropped malformed marks", "call", call.ID, "dropped", dropped)
		}
		res.Response = map[string]any{"result": "ok", "added": len(added), "dropped": dropped}
	case ToolClearMarks:
		e.Clear()
		metrics.RecordToolCall(call.Name, "ok")
		res.Response = map[string]any{"result": "ok"}
	default:
		metrics.RecordToolCall(call.Name, "unknown")
		slog.Warn("unknown tool", "name", call.Name, "call", call.ID)
		res.Response = map[string]any{"error": fmt.Sprintf("unknown tool: %s", call.Name)}
	}
	return res
}

// markArgs is the wire shape of one mark_screen entry.
type markArgs struct {
	Type   string      `json:"type"`
	X      *float64    `json:"x"`
	Y      *float64    `json:"y"`
	Width  *float64    `json:"width"`
	Height *float64    `json:"height"`
	Label  string      `json:"label"`
	Points []wirePoint `json:"points"`
}

// wirePoint accepts either {"x":..,"y":..} or [x, y].
type wirePoint Point

func (p *wirePoint) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("point needs 2 coordinates, got %d", len(pair))
		}
		p.X, p.Y = pair[0], pair[1]
		return nil
	}
	var obj struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.X == nil || obj.Y == nil {
		return fmt.Errorf("point missing coordinate")
	}
	p.X, p.Y = *obj.X, *obj.Y
	return nil
}

// parseMarks decodes each entry independently so one bad mark does not
// poison the rest.
func parseMarks(args map[string]any) ([]Drawing, int) {
	raw, ok := args["marks"].([]any)
	if !ok {
		if args["marks"] != nil {
			return nil, 1
		}
		return nil, 0
	}

	var (
		out     []Drawing
		dropped int
	)
	for i, item := range raw {
		d, err := parseMark(item)
		if err != nil {
			slog.Debug("drop mark", "index", i, "error", err)
			dropped++
			continue
		}
		out = append(out, d)
	}
	return out, dropped
}

func parseMark(item any) (Drawing, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return Drawing{}, fmt.Errorf("encode mark: %w", err)
	}
	var m markArgs
	if err := json.Unmarshal(data, &m); err != nil {
		return Drawing{}, fmt.Errorf("decode mark: %w", err)
	}
	if m.X == nil || m.Y == nil {
		return Drawing{}, fmt.Errorf("mark missing x or y")
	}
	anchor := Point{X: *m.X, Y: *m.Y}
	if !anchor.finite() {
		return Drawing{}, fmt.Errorf("mark has non-finite anchor")
	}
	anchor = anchor.Clamp()

	points := make([]Point, 0, len(m.Points))
	for _, p := range m.Points {
		pt := Point(p)
		if !pt.finite() {
			return Drawing{}, fmt.Errorf("mark has non-finite point")
		}
		points = append(points, pt.Clamp())
	}

	d := Drawing{Kind: Kind(strings.ToLower(strings.TrimSpace(m.Type))), X: anchor.X, Y: anchor.Y}
	switch d.Kind {
	case KindRect:
		d.Width = sizeOr(m.Width, defaultRectSize)
		d.Height = sizeOr(m.Height, defaultRectSize)
	case KindCircle:
		switch {
		case validSize(m.Width):
			d.Radius = *m.Width
		case validSize(m.Height):
			d.Radius = *m.Height
		default:
			d.Radius = defaultCircleRadius
		}
	case KindArrow:
		switch {
		case len(points) >= 2:
			d.Points = []Point{points[0], points[len(points)-1]}
			d.X, d.Y = points[0].X, points[0].Y
		case m.Width != nil || m.Height != nil:
			end := Point{X: anchor.X + deref(m.Width), Y: anchor.Y + deref(m.Height)}
			if !end.finite() {
				return Drawing{}, fmt.Errorf("arrow has non-finite delta")
			}
			d.Points = []Point{anchor, end.Clamp()}
		default:
			return Drawing{}, fmt.Errorf("arrow needs points or a delta")
		}
	case KindPath:
		if len(points) < 2 {
			return Drawing{}, fmt.Errorf("path needs at least 2 points")
		}
		d.Points = points
		d.X, d.Y = points[0].X, points[0].Y
	case KindText:
		d.Label = strings.TrimSpace(m.Label)
		if d.Label == "" {
			d.Label = DefaultLabel
		}
	default:
		return Drawing{}, fmt.Errorf("unknown mark type %q", m.Type)
	}
	return d, nil
}

func validSize(v *float64) bool {
	return v != nil && *v > 0 && Point{X: *v}.finite()
}

func sizeOr(v *float64, def float64) float64 {
	if validSize(v) {
		return min(*v, Extent)
	}
	return def
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
