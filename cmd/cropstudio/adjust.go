package main

import (
	"fmt"
	"strconv"
	"strings"
)

type valueAdjustment struct {
	id    string
	value float64
}

type panAdjustment struct {
	id     string
	dx, dy float64
}

// adjustments are the per-preset framing changes requested on the command
// line, in the order given.
type adjustments struct {
	zooms  []valueAdjustment
	pans   []panAdjustment
	scales []valueAdjustment
}

func parseAdjustments(zooms, pans, scales []string) (*adjustments, error) {
	adj := &adjustments{}

	for _, raw := range zooms {
		a, err := parseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid --zoom %q: %w", raw, err)
		}
		adj.zooms = append(adj.zooms, a)
	}

	for _, raw := range pans {
		a, err := parsePan(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid --pan %q: %w", raw, err)
		}
		adj.pans = append(adj.pans, a)
	}

	for _, raw := range scales {
		a, err := parseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid --scale %q: %w", raw, err)
		}
		adj.scales = append(adj.scales, a)
	}

	return adj, nil
}

func splitAssignment(raw string) (string, string, error) {
	id, value, ok := strings.Cut(raw, "=")
	id = strings.TrimSpace(id)
	if !ok || id == "" {
		return "", "", fmt.Errorf("expected id=value")
	}
	return id, strings.TrimSpace(value), nil
}

// parseValue parses "id=value"
func parseValue(raw string) (valueAdjustment, error) {
	id, value, err := splitAssignment(raw)
	if err != nil {
		return valueAdjustment{}, err
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return valueAdjustment{}, fmt.Errorf("invalid number: %v", err)
	}
	return valueAdjustment{id: id, value: v}, nil
}

// parsePan parses "id=dx,dy"
func parsePan(raw string) (panAdjustment, error) {
	id, value, err := splitAssignment(raw)
	if err != nil {
		return panAdjustment{}, err
	}

	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return panAdjustment{}, fmt.Errorf("expected id=dx,dy")
	}

	dx, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return panAdjustment{}, fmt.Errorf("invalid dx: %v", err)
	}
	dy, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return panAdjustment{}, fmt.Errorf("invalid dy: %v", err)
	}
	return panAdjustment{id: id, dx: dx, dy: dy}, nil
}
