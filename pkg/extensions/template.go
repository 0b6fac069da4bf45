// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import "context"

// TemplateEngine post-processes the markup painted by the component tree
// before it is placed in the page shell.
//
// Render receives the complete painted fragment and returns its
// replacement. An error aborts the render and is handled as a render
// failure.
type TemplateEngine interface {
	Render(ctx context.Context, markup []byte) ([]byte, error)
}

// NopTemplateEngine returns markup unchanged.
type NopTemplateEngine struct{}

// Render returns markup.
func (e *NopTemplateEngine) Render(ctx context.Context, markup []byte) ([]byte, error) {
	return markup, nil
}

// IsNop reports whether engine is nil or the no-op engine, in which case
// the template interceptor is left out of the chain.
func IsNop(engine TemplateEngine) bool {
	if engine == nil {
		return true
	}
	_, ok := engine.(*NopTemplateEngine)
	return ok
}

var _ TemplateEngine = (*NopTemplateEngine)(nil)
