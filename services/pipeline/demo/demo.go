// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package demo is the order form served by formsd when no other
// application is configured. It exercises every request class: full page
// posts, AJAX updates of single fields and repeated rows, a poller, a
// downloadable export and a secondary window.
package demo

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianForms/pkg/extensions"
	"github.com/AleutianAI/AleutianForms/services/pipeline/escape"
	"github.com/AleutianAI/AleutianForms/services/pipeline/i18n"
	"github.com/AleutianAI/AleutianForms/services/pipeline/rules"
	"github.com/AleutianAI/AleutianForms/services/pipeline/transport"
	"github.com/AleutianAI/AleutianForms/services/pipeline/ui"
	"github.com/AleutianAI/AleutianForms/services/pipeline/widgets"
)

// Component ids addressed by tests and rules.
const (
	IDApp      = "orders"
	IDName     = "name"
	IDCountry  = "country"
	IDVAT      = "vat"
	IDSubmit   = "submit"
	IDCheck    = "check"
	IDGreeting = "greeting"
	IDClock    = "clock"
	IDTime     = "time"
	IDItems    = "items"
	IDQty      = "qty"
	IDInc      = "inc"
	IDAddRow   = "addrow"
	IDExport   = "export"
	IDHelp     = "help"
	IDNotice   = "notice"
)

// PollInterval is how often the clock refreshes.
const PollInterval = 5 * time.Second

// App is the demo tree with handles on the components its actions use.
type App struct {
	Root *widgets.Application

	name     *widgets.TextField
	country  *widgets.TextField
	greeting *widgets.Text
	notice   *widgets.Text
	clock    *widgets.Text
	items    *widgets.Repeater
	qty      *widgets.TextField

	now func() time.Time
}

// New builds the demo tree. The tree is shared by every user; all state
// lives in the user contexts. AJAX buttons list themselves among their
// targets so that repainting them registers their operation again.
func New(title string) *App {
	a := &App{now: time.Now}

	a.name = widgets.NewTextField(IDName, "Name")
	a.country = widgets.NewTextField(IDCountry, "Country code")
	vat := widgets.NewTextField(IDVAT, "VAT number")
	a.greeting = widgets.NewText(IDGreeting, "")
	a.notice = widgets.NewText(IDNotice, "")
	a.clock = widgets.NewText(IDTime, "")
	a.qty = widgets.NewTextField(IDQty, "Quantity")
	a.items = widgets.NewRepeater(IDItems,
		a.qty,
		widgets.NewButton(IDInc, "+1", a.increment).WithAjaxTargets(IDQty, IDInc),
	)

	form := widgets.NewContainer("form",
		a.name,
		a.country,
		vat,
		widgets.NewButton(IDSubmit, "Submit", a.submit),
		widgets.NewButton(IDCheck, "Check", a.check).WithAjaxTargets(IDGreeting, IDVAT, IDCheck),
	)

	a.Root = widgets.NewApplication(IDApp, title,
		a.notice,
		form,
		a.greeting,
		widgets.NewPoller(IDClock, PollInterval, a.tick, a.clock),
		widgets.NewContainer("lines",
			a.items,
			widgets.NewButton(IDAddRow, "Add line", a.addRow).WithAjaxContainer("lines"),
		),
		widgets.NewContent(IDExport, "Export CSV", "text/csv; charset=utf-8", ui.CachePrivate, a.export),
		widgets.NewWindow(IDHelp, "Help",
			widgets.NewText("helptext", "Enter a name and press Submit. German orders need a VAT number."),
		),
	)
	return a
}

// Rules returns the subordinate controls of the form: the VAT field is
// only shown for German orders and the greeting only once a name exists.
func Rules() []rules.Rule {
	return []rules.Rule{
		{When: `upper(values.country) == "DE"`, Action: rules.ActionShow, Targets: []string{IDVAT}},
		{When: `values.name == ""`, Action: rules.ActionHide, Targets: []string{IDGreeting}},
	}
}

// OnStepError tells the user that the action they took on an outdated page
// was dropped. The notice stays until their next submit or check.
func (a *App) OnStepError(uic ui.Context, _ extensions.StepError) {
	a.notice.SetText(uic, i18n.Message(uic.Locale(), i18n.StepWarped))
}

func (a *App) greet(uic ui.Context) string {
	name := strings.TrimSpace(a.name.Value(uic))
	if name == "" {
		return ""
	}
	if c := strings.TrimSpace(a.country.Value(uic)); c != "" {
		return fmt.Sprintf("Hello %s from %s", name, strings.ToUpper(c))
	}
	return "Hello " + name
}

func (a *App) submit(uic ui.Context, _ transport.Request) escape.Outcome {
	a.notice.SetText(uic, "")
	a.greeting.SetText(uic, a.greet(uic))
	return escape.Proceed()
}

func (a *App) check(uic ui.Context, _ transport.Request) escape.Outcome {
	a.notice.SetText(uic, "")
	if greeting := a.greet(uic); greeting != "" {
		a.greeting.SetText(uic, greeting)
	} else {
		a.greeting.SetText(uic, "Please enter a name")
	}
	return escape.Proceed()
}

func (a *App) tick(uic ui.Context, _ transport.Request) escape.Outcome {
	a.clock.SetText(uic, a.now().UTC().Format(time.RFC3339))
	return escape.Proceed()
}

// increment runs inside the row's context, so qty is the row's field.
func (a *App) increment(uic ui.Context, _ transport.Request) escape.Outcome {
	n, _ := strconv.Atoi(a.qty.Value(uic))
	a.qty.SetValue(uic, strconv.Itoa(n+1))
	return escape.Proceed()
}

func (a *App) addRow(uic ui.Context, _ transport.Request) escape.Outcome {
	keys := a.items.RowKeys(uic)
	a.items.SetRows(uic, append(keys, strconv.Itoa(len(keys)+1)))
	return escape.Proceed()
}

func (a *App) export(uic ui.Context) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"name", "country", "line", "qty"})
	for _, row := range a.items.Rows(uic) {
		_ = w.Write([]string{a.name.Value(uic), a.country.Value(uic), row.Key, a.qty.Value(row.Context)})
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
