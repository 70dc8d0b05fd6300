package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryOf(t *testing.T) {
	cases := []struct {
		name     string
		category string
		source   string
		ok       bool
	}{
		{"class_10/genetic_engineering.pdf", "10", "genetic_engineering.pdf", true},
		{"class_9/cells.pdf", "9", "cells.pdf", true},
		{"class_/x.pdf", "", "", false},
		{"notes/x.pdf", "", "", false},
		{"class_10/", "", "", false},
		{"class_10/sub/x.pdf", "", "", false},
		{"x.pdf", "", "", false},
	}
	for _, tc := range cases {
		category, source, ok := CategoryOf(tc.name)
		assert.Equal(t, tc.ok, ok, tc.name)
		assert.Equal(t, tc.category, category, tc.name)
		assert.Equal(t, tc.source, source, tc.name)
	}
}
