package telephony

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
)

// ConnectStream describes the call-control document returned to the
// telephony provider on call setup: connect the call to the media-stream
// socket and pass the listed parameters through on the start frame.
type ConnectStream struct {
	URL        string
	Parameters map[string]string
}

type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Connect twimlConnect `xml:"Connect"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string       `xml:"url,attr"`
	Parameters []twimlParam `xml:"Parameter"`
}

type twimlParam struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Render produces the XML document, with parameters in a stable order so
// the output is deterministic.
func (c ConnectStream) Render() ([]byte, error) {
	names := make([]string, 0, len(c.Parameters))
	for name := range c.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	doc := twimlResponse{
		Connect: twimlConnect{
			Stream: twimlStream{URL: c.URL},
		},
	}
	for _, name := range names {
		doc.Connect.Stream.Parameters = append(doc.Connect.Stream.Parameters, twimlParam{
			Name:  name,
			Value: c.Parameters[name],
		})
	}

	body, err := xml.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode call-control document: %w", err)
	}
	return []byte(xml.Header + string(body) + "\n"), nil
}

// WebSocketURL converts the public HTTP(S) base URL into its WS(S)
// equivalent for the stream connect instruction.
func WebSocketURL(publicURL string) string {
	switch {
	case strings.HasPrefix(publicURL, "https://"):
		return "wss://" + strings.TrimPrefix(publicURL, "https://")
	case strings.HasPrefix(publicURL, "http://"):
		return "ws://" + strings.TrimPrefix(publicURL, "http://")
	default:
		return publicURL
	}
}
