// Package output prints responses and wire requests for the command line.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"code.cloudfoundry.org/bytefmt"
	"github.com/logrusorgru/aurora"
	"github.com/pkg/errors"

	"authrator/internal/model"
)

type PrettyPrinter struct {
	writer        io.Writer
	aurora        aurora.Aurora
	headerPalette *HeaderPalette
}

type PrettyPrinterConfig struct {
	Writer      io.Writer
	EnableColor bool
}

type HeaderPalette struct {
	Method         aurora.Color
	URL            aurora.Color
	Status         aurora.Color
	ErrorStatus    aurora.Color
	FieldName      aurora.Color
	FieldValue     aurora.Color
	FieldSeparator aurora.Color
	Summary        aurora.Color
}

var defaultHeaderPalette = HeaderPalette{
	Method:         aurora.GreenFg | aurora.BoldFm,
	URL:            aurora.CyanFg,
	Status:         aurora.BrownFg | aurora.BoldFm,
	ErrorStatus:    aurora.RedFg | aurora.BoldFm,
	FieldName:      aurora.BlackFg | aurora.BrightFg,
	FieldValue:     aurora.CyanFg,
	FieldSeparator: aurora.BlackFg | aurora.BrightFg,
	Summary:        aurora.BlackFg | aurora.BrightFg,
}

func NewPrettyPrinter(config PrettyPrinterConfig) *PrettyPrinter {
	return &PrettyPrinter{
		writer:        config.Writer,
		aurora:        aurora.NewAurora(config.EnableColor),
		headerPalette: &defaultHeaderPalette,
	}
}

// PrintResponse prints the status line, headers, body and a size/time summary.
func (p *PrettyPrinter) PrintResponse(resp model.Response) error {
	if err := p.PrintStatusLine(resp.Status, resp.StatusText); err != nil {
		return err
	}
	if err := p.PrintHeader(resp.Headers); err != nil {
		return err
	}
	if err := p.PrintBody(resp.Body, contentType(resp.Headers)); err != nil {
		return err
	}
	return p.PrintSummary(resp.Size, resp.ElapsedMs)
}

func (p *PrettyPrinter) PrintStatusLine(status int, statusText string) error {
	color := p.headerPalette.Status
	if status >= 400 {
		color = p.headerPalette.ErrorStatus
	}
	_, err := fmt.Fprintf(p.writer, "%s\n",
		p.aurora.Colorize(strconv.Itoa(status)+" "+statusText, color))
	return errors.Wrap(err, "printing status line")
}

func (p *PrettyPrinter) PrintRequestLine(method model.Method, url string) error {
	_, err := fmt.Fprintf(p.writer, "%s %s\n",
		p.aurora.Colorize(string(method), p.headerPalette.Method),
		p.aurora.Colorize(url, p.headerPalette.URL))
	return errors.Wrap(err, "printing request line")
}

// PrintHeader prints headers in the given order followed by a blank line.
func (p *PrettyPrinter) PrintHeader(headers []model.KeyValue) error {
	for _, h := range headers {
		if _, err := fmt.Fprintf(p.writer, "%s%s %s\n",
			p.aurora.Colorize(h.Key, p.headerPalette.FieldName),
			p.aurora.Colorize(":", p.headerPalette.FieldSeparator),
			p.aurora.Colorize(h.Value, p.headerPalette.FieldValue)); err != nil {
			return errors.Wrap(err, "printing header")
		}
	}
	_, err := fmt.Fprintln(p.writer)
	return errors.Wrap(err, "printing header")
}

// PrintBody prints JSON bodies indented and anything else verbatim.
func (p *PrettyPrinter) PrintBody(body, contentType string) error {
	if body == "" {
		return nil
	}
	if !isJSON(contentType) && !looksLikeJSON(body) {
		_, err := fmt.Fprintln(p.writer, body)
		return errors.Wrap(err, "printing response body")
	}

	var v interface{}
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		// Declared JSON that does not parse is shown as is.
		_, err := fmt.Fprintln(p.writer, body)
		return errors.Wrap(err, "printing response body")
	}

	encoder := json.NewEncoder(p.writer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(v); err != nil {
		return errors.Wrap(err, "encoding JSON")
	}
	return nil
}

// PrintSummary prints the body size and elapsed time.
func (p *PrettyPrinter) PrintSummary(size, elapsedMs int64) error {
	if size < 0 {
		size = 0
	}
	line := fmt.Sprintf("%s in %d ms", bytefmt.ByteSize(uint64(size)), elapsedMs)
	_, err := fmt.Fprintf(p.writer, "\n%s\n", p.aurora.Colorize(line, p.headerPalette.Summary))
	return errors.Wrap(err, "printing summary")
}

// PrintWireRequest prints what would be handed to the proxy.
func (p *PrettyPrinter) PrintWireRequest(wr model.WireRequest) error {
	if err := p.PrintRequestLine(wr.Method, wr.URL); err != nil {
		return err
	}
	if err := p.PrintHeader(wr.Headers); err != nil {
		return err
	}
	if wr.Body != nil {
		b, err := json.Marshal(wr.Body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		if err := p.PrintBody(string(b), "application/json"); err != nil {
			return err
		}
	}
	s := wr.Settings
	_, err := fmt.Fprintf(p.writer, "\n%s\n", p.aurora.Colorize(
		fmt.Sprintf("followRedirects=%t timeout=%dms sslVerification=%t", s.FollowRedirects, s.Timeout, s.SSLVerification),
		p.headerPalette.Summary))
	return errors.Wrap(err, "printing settings")
}

func contentType(headers []model.KeyValue) string {
	for _, h := range headers {
		if strings.EqualFold(h.Key, "Content-Type") {
			return h.Value
		}
	}
	return ""
}

func isJSON(contentType string) bool {
	contentType = strings.TrimSpace(contentType)

	semicolon := strings.Index(contentType, ";")
	if semicolon != -1 {
		contentType = contentType[:semicolon]
	}

	return contentType == "application/json" || strings.HasSuffix(contentType, "+json")
}

func looksLikeJSON(body string) bool {
	b := bytes.TrimSpace([]byte(body))
	if len(b) == 0 || (b[0] != '{' && b[0] != '[') {
		return false
	}
	return json.Valid(b)
}
