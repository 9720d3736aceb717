package util

import (
	"errors"
	"math"
	"testing"

	"github.com/yaroslav/microdc/models"
)

func TestValidateUUID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{
			name:    "valid UUID v4",
			id:      "550e8400-e29b-41d4-a716-446655440000",
			wantErr: false,
		},
		{
			name:    "valid UUID v1",
			id:      "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
			wantErr: false,
		},
		{
			name:    "invalid UUID - too short",
			id:      "550e8400-e29b-41d4",
			wantErr: true,
		},
		{
			name:    "invalid UUID - not hex",
			id:      "550e8400-e29b-41d4-a716-gggggggggggg",
			wantErr: true,
		},
		{
			name:    "empty string",
			id:      "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUUID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUUID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateVLANTag(t *testing.T) {
	tests := []struct {
		name    string
		tag     int
		wantErr bool
	}{
		{name: "lowest usable", tag: 2, wantErr: false},
		{name: "highest usable", tag: 4094, wantErr: false},
		{name: "typical", tag: 120, wantErr: false},
		{name: "untagged", tag: 0, wantErr: true},
		{name: "default vlan", tag: 1, wantErr: true},
		{name: "reserved top", tag: 4095, wantErr: true},
		{name: "negative", tag: -5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVLANTag(tt.tag)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateVLANTag(%d) error = %v, wantErr %v", tt.tag, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, models.ErrValidationFailed) {
				t.Errorf("ValidateVLANTag(%d) error = %v, want ErrValidationFailed", tt.tag, err)
			}
		})
	}
}

func TestValidateRange(t *testing.T) {
	tests := []struct {
		name    string
		r       models.Range
		lo, hi  int
		wantErr bool
	}{
		{name: "inside bounds", r: models.Range{Min: 100, Max: 199}, lo: 2, hi: 4094},
		{name: "single value", r: models.Range{Min: 7, Max: 7}, lo: 0, hi: math.MaxInt32},
		{name: "whole bounds", r: models.Range{Min: 2, Max: 4094}, lo: 2, hi: 4094},
		{name: "inverted", r: models.Range{Min: 10, Max: 5}, lo: 0, hi: 100, wantErr: true},
		{name: "below", r: models.Range{Min: 1, Max: 10}, lo: 2, hi: 4094, wantErr: true},
		{name: "above", r: models.Range{Min: 4000, Max: 4095}, lo: 2, hi: 4094, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRange("pool", tt.r, tt.lo, tt.hi)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRange() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNodeName(t *testing.T) {
	tests := []struct {
		name     string
		nodeName string
		wantErr  bool
	}{
		{name: "simple", nodeName: "pve1", wantErr: false},
		{name: "with hyphen", nodeName: "fra-edge-pve-01", wantErr: false},
		{name: "single char", nodeName: "a", wantErr: false},
		{name: "empty", nodeName: "", wantErr: true},
		{name: "path traversal", nodeName: "../cluster", wantErr: true},
		{name: "slash", nodeName: "pve1/network", wantErr: true},
		{name: "leading hyphen", nodeName: "-pve", wantErr: true},
		{name: "dotted", nodeName: "pve1.example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNodeName(tt.nodeName)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateNodeName(%q) error = %v, wantErr %v", tt.nodeName, err, tt.wantErr)
			}
		})
	}
}
