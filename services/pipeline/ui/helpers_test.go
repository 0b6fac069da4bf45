// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ui

import (
	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
)

// leaf paints <ui:leaf id=".."/> and counts its phase calls.
type leaf struct {
	Base
	serviced int
}

func newLeaf(id string) *leaf {
	return &leaf{Base: NewBase(id)}
}

func (l *leaf) ServiceRequest(uic Context, req transport.Request) escape.Outcome {
	l.serviced++
	return escape.Proceed()
}

func (l *leaf) Paint(uic Context, rc *RenderContext) escape.Outcome {
	rc.XML().Open("ui:leaf").Attr("id", RenderedID(uic, l)).SelfClose()
	return escape.Proceed()
}

// table repeats its children once per key, each row with its own models.
type table struct {
	Base
	keys []string
	rows map[string]RowModels
}

func newTable(id string, keys []string, children ...Component) *table {
	return &table{Base: NewBase(id, children...), keys: keys, rows: map[string]RowModels{}}
}

func (t *table) Rows(uic Context) []Row {
	rows := make([]Row, 0, len(t.keys))
	for _, key := range t.keys {
		models, ok := t.rows[key]
		if !ok {
			models = RowModels{}
			t.rows[key] = models
		}
		rows = append(rows, Row{Key: key, Context: NewSubContext(uic, RowPrefix(t, key), models)})
	}
	return rows
}

var _ ScopedContainer = (*table)(nil)
