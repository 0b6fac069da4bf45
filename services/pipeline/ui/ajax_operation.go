// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ui

import (
	"slices"
	"time"
)

// AjaxOperation describes what a trigger updates when it fires: the ids of
// the target components, or a single container id.
//
// AjaxOperation is an immutable value. The With* methods return modified
// copies and the target slice is copied on the way in and on the way out.
type AjaxOperation struct {
	triggerID   string
	targets     []string
	containerID string
	pollDelay   time.Duration
	useCount    int
}

// NewAjaxOperation creates an operation for triggerID updating targets.
// With no targets the trigger updates itself.
func NewAjaxOperation(triggerID string, targets ...string) AjaxOperation {
	if len(targets) == 0 {
		targets = []string{triggerID}
	}
	return AjaxOperation{
		triggerID: triggerID,
		targets:   slices.Clone(targets),
	}
}

// WithContainer returns a copy that paints into a single container.
func (o AjaxOperation) WithContainer(containerID string) AjaxOperation {
	o.targets = slices.Clone(o.targets)
	o.containerID = containerID
	return o
}

// WithPollDelay returns a copy carrying the trigger's poll delay.
func (o AjaxOperation) WithPollDelay(d time.Duration) AjaxOperation {
	o.targets = slices.Clone(o.targets)
	o.pollDelay = d
	return o
}

// Used returns a copy with the use count incremented. The registry calls it
// each time the operation is resolved for a request.
func (o AjaxOperation) Used() AjaxOperation {
	o.targets = slices.Clone(o.targets)
	o.useCount++
	return o
}

// TriggerID returns the rendered id of the trigger.
func (o AjaxOperation) TriggerID() string { return o.triggerID }

// Targets returns a copy of the target ids in paint order.
func (o AjaxOperation) Targets() []string { return slices.Clone(o.targets) }

// ContainerID returns the single container id, or "".
func (o AjaxOperation) ContainerID() string { return o.containerID }

// PollDelay returns the poll delay recorded at registration.
func (o AjaxOperation) PollDelay() time.Duration { return o.pollDelay }

// UseCount returns how many requests have resolved this operation.
func (o AjaxOperation) UseCount() int { return o.useCount }

// IsZero reports whether o is the zero operation.
func (o AjaxOperation) IsZero() bool { return o.triggerID == "" }

// AjaxBinding is the operation being processed by the current AJAX request
// together with the trigger it resolved to.
type AjaxBinding struct {
	Operation AjaxOperation
	Trigger   ComponentWithContext
}
