// Package xcal renders resolved occurrences as xCal (RFC 6321) documents.
package xcal

import (
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/cyp0633/librecur/calendar"
	"github.com/cyp0633/librecur/icalendar"
)

// Namespace is the xCal XML namespace.
const Namespace = "urn:ietf:params:xml:ns:icalendar-2.0"

// Element names used in xCal documents
const (
	TagICalendar  = "icalendar"
	TagVCalendar  = "vcalendar"
	TagVEvent     = "vevent"
	TagProperties = "properties"
	TagComponents = "components"
	TagParameters = "parameters"
	TagText       = "text"
	TagInteger    = "integer"
	TagDateTime   = "date-time"
)

const (
	dateTimeFormat    = "2006-01-02T15:04:05"
	dateTimeFormatUTC = "2006-01-02T15:04:05Z"
)

// Property is an element with optional text and children.
type Property struct {
	Name        string
	TextContent string
	Children    []Property
	Attributes  map[string]string
}

// ToElement converts a Property to an etree.Element
func (p *Property) ToElement() *etree.Element {
	elem := etree.NewElement(p.Name)
	if p.TextContent != "" {
		elem.SetText(p.TextContent)
	}
	for key, value := range p.Attributes {
		elem.CreateAttr(key, value)
	}
	for _, child := range p.Children {
		elem.AddChild(child.ToElement())
	}
	return elem
}

func text(name, value string) Property {
	return Property{Name: name, Children: []Property{{Name: TagText, TextContent: value}}}
}

func integer(name string, value int) Property {
	return Property{Name: name, Children: []Property{{Name: TagInteger, TextContent: strconv.Itoa(value)}}}
}

// dateTime writes UTC times with a Z suffix and other zones as local time
// with a tzid parameter.
func dateTime(name string, t time.Time) Property {
	if t.Location() == time.UTC {
		return Property{Name: name, Children: []Property{{Name: TagDateTime, TextContent: t.Format(dateTimeFormatUTC)}}}
	}
	return Property{Name: name, Children: []Property{
		{Name: TagParameters, Children: []Property{text("tzid", t.Location().String())}},
		{Name: TagDateTime, TextContent: t.Format(dateTimeFormat)},
	}}
}

// Render builds an xCal document with one vevent per entry. Occurrences of
// the same event share a uid and carry their own start as recurrence-id.
func Render(calendarName string, entries []calendar.Entry) *etree.Document {
	calProps := Property{Name: TagProperties, Children: []Property{
		text("prodid", icalendar.ProductID),
		text("version", "2.0"),
	}}
	if calendarName != "" {
		calProps.Children = append(calProps.Children, text("x-wr-calname", calendarName))
	}

	components := Property{Name: TagComponents}
	for _, e := range entries {
		components.Children = append(components.Children, event(e))
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(TagICalendar)
	root.CreateAttr("xmlns", Namespace)
	vcal := Property{Name: TagVCalendar, Children: []Property{calProps, components}}
	root.AddChild(vcal.ToElement())
	return doc
}

func event(e calendar.Entry) Property {
	props := []Property{text("uid", e.UID.String())}
	if e.Recurring {
		props = append(props, dateTime("recurrence-id", e.Start))
	}
	props = append(props,
		dateTime("dtstart", e.Start),
		dateTime("dtend", e.End),
		text("summary", e.Summary),
	)
	if e.Description != "" {
		props = append(props, text("description", e.Description))
	}
	if e.Status != "" {
		props = append(props,
			text("status", string(e.Status)),
			text("color", e.Status.Color()))
	}
	props = append(props,
		integer("sequence", e.Sequence),
		text("x-event-id", e.EventID))

	return Property{Name: TagVEvent, Children: []Property{{Name: TagProperties, Children: props}}}
}
