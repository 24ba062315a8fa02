package feeds

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/text/encoding/ianaindex"

	"livetv-guide/model"
)

// Node is the flattened form of a child element: its character data and
// its attributes.
type Node struct {
	Text  string
	Attrs map[string]string
}

// Element is a flattened XML record. Attributes become scalar fields and
// each child element becomes a Node under its tag name.
type Element struct {
	Name     string
	Attrs    map[string]string
	Children map[string][]Node
}

// Child returns the first child with the given tag name.
func (e Element) Child(name string) (Node, bool) {
	nodes := e.Children[name]
	if len(nodes) == 0 {
		return Node{}, false
	}
	return nodes[0], true
}

// Schedule is the decoded content of an XMLTV document.
type Schedule struct {
	Programmes []model.Programme
	// Icons maps channel id to the icon src declared on <channel>.
	Icons map[string]string
	// Skipped holds one error per dropped record.
	Skipped []error
}

type rawElement struct {
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []rawChild `xml:",any"`
}

type rawChild struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Text    string     `xml:",chardata"`
}

// ParseSchedule streams an XMLTV document. Every element that carries a
// channel attribute is a programme record; <channel id> elements feed the
// icon map. Records that fail to decode are collected in Skipped; only a
// malformed document fails the whole parse.
func ParseSchedule(r io.Reader) (*Schedule, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = charsetReader

	schedule := &Schedule{Icons: make(map[string]string)}
	var openEnded []model.Programme

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error decoding schedule: %w", err)
		}

		se, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		_, isProgramme := attr(se.Attr, "channel")
		channelID, isChannel := attr(se.Attr, "id")
		if !isProgramme && !(se.Name.Local == "channel" && isChannel) {
			continue
		}

		var raw rawElement
		if err := decoder.DecodeElement(&raw, &se); err != nil {
			return nil, fmt.Errorf("error decoding <%s>: %w", se.Name.Local, err)
		}
		el := flatten(se.Name.Local, raw)

		if !isProgramme {
			if icon, ok := el.Child("icon"); ok && icon.Attrs["src"] != "" {
				schedule.Icons[channelID] = icon.Attrs["src"]
			}
			continue
		}

		programme, err := NewProgramme(el)
		switch {
		case errors.Is(err, errMissingStop):
			openEnded = append(openEnded, programme)
		case err != nil:
			schedule.Skipped = append(schedule.Skipped, err)
		default:
			schedule.Programmes = append(schedule.Programmes, programme)
		}
	}

	if len(openEnded) > 0 {
		closed, skipped := closeOpenEnded(schedule.Programmes, openEnded)
		schedule.Programmes = append(schedule.Programmes, closed...)
		schedule.Skipped = append(schedule.Skipped, skipped...)
	}

	return schedule, nil
}

var errMissingStop = errors.New("missing stop time")

// NewProgramme converts a flattened programme record. A record without a
// stop attribute is returned together with an error wrapping
// errMissingStop so the caller can close it against the next programme.
func NewProgramme(el Element) (model.Programme, error) {
	p := model.Programme{ChannelID: strings.TrimSpace(el.Attrs["channel"])}
	if p.ChannelID == "" {
		return p, &ParseError{Field: "channel", Value: el.Attrs["channel"]}
	}

	start, err := ParseXMLTVTime(el.Attrs["start"])
	if err != nil {
		return p, &ParseError{Field: "start", Value: el.Attrs["start"], Err: err}
	}
	p.Start = start

	if title, ok := el.Child("title"); ok {
		p.Title = title.Text
	}
	if subTitle, ok := el.Child("sub-title"); ok {
		p.SubTitle = subTitle.Text
	}
	if desc, ok := el.Child("desc"); ok {
		p.Description = desc.Text
	}

	seen := make(map[string]struct{})
	for _, node := range el.Children["category"] {
		for _, category := range ParseCategories(node.Text) {
			if _, dup := seen[category.Name]; dup {
				continue
			}
			seen[category.Name] = struct{}{}
			p.Categories = append(p.Categories, category)
		}
	}

	for _, node := range el.Children["episode-num"] {
		if node.Attrs["system"] == "xmltv_ns" {
			ParseEpisodeNumber(node.Text).Apply(&p)
			break
		}
	}

	rawStop, ok := el.Attrs["stop"]
	if !ok || strings.TrimSpace(rawStop) == "" {
		return p, &ParseError{Field: "stop", Value: rawStop, Err: errMissingStop}
	}

	stop, err := ParseXMLTVTime(rawStop)
	if err != nil {
		return p, &ParseError{Field: "stop", Value: rawStop, Err: err}
	}
	if !stop.After(start) {
		return p, &ParseError{Field: "stop", Value: rawStop, Err: errors.New("stop is not after start")}
	}
	p.Stop = stop

	return p, nil
}

// closeOpenEnded gives programmes without a stop time the start of the next
// programme on the same channel. The last programme of a channel cannot be
// closed and is dropped.
func closeOpenEnded(complete, openEnded []model.Programme) ([]model.Programme, []error) {
	starts := make(map[string][]model.Programme)
	for _, p := range complete {
		starts[p.ChannelID] = append(starts[p.ChannelID], p)
	}
	for _, p := range openEnded {
		starts[p.ChannelID] = append(starts[p.ChannelID], p)
	}
	for _, list := range starts {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Start.Before(list[j].Start) })
	}

	var (
		closed  []model.Programme
		skipped []error
	)
	for _, p := range openEnded {
		list := starts[p.ChannelID]
		idx := sort.Search(len(list), func(i int) bool { return list[i].Start.After(p.Start) })
		if idx == len(list) {
			skipped = append(skipped, &ParseError{Field: "stop", Value: "", Err: errMissingStop})
			continue
		}
		p.Stop = list[idx].Start
		closed = append(closed, p)
	}

	return closed, skipped
}

func flatten(name string, raw rawElement) Element {
	el := Element{
		Name:     name,
		Attrs:    attrMap(raw.Attrs),
		Children: make(map[string][]Node, len(raw.Children)),
	}
	for _, child := range raw.Children {
		el.Children[child.XMLName.Local] = append(el.Children[child.XMLName.Local], Node{
			Text:  strings.TrimSpace(child.Text),
			Attrs: attrMap(child.Attrs),
		})
	}
	return el
}

func attrMap(attrs []xml.Attr) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Name.Local] = a.Value
	}
	return m
}

func attr(attrs []xml.Attr, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}
