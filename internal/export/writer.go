package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Record is one audit row as it appears in an export file, already redacted
// for the requester's permissions.
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	Actor       string    `json:"actor"`
	Action      string    `json:"action"`
	Resource    string    `json:"resource"`
	Description string    `json:"description"`
	Outcome     string    `json:"outcome"`
	IPAddress   string    `json:"ipAddress"`
	SessionID   string    `json:"sessionId"`
}

// Writer streams export records into an output file page by page, so a
// maximum-size export never holds more than one page in memory.
type Writer interface {
	Begin(out io.Writer, job Job) error
	WritePage(records []Record) error
	End() error
}

// NewWriter returns the writer for the job's format.
func NewWriter(format Format) Writer {
	switch format {
	case FormatJSON:
		return &jsonWriter{}
	case FormatPDF:
		return &pdfWriter{}
	default:
		return &csvWriter{}
	}
}

var csvHeader = []string{"Timestamp", "Actor", "Action", "Resource", "Description", "Outcome", "IP Address", "Session ID"}

type csvWriter struct {
	w *csv.Writer
}

func (c *csvWriter) Begin(out io.Writer, _ Job) error {
	c.w = csv.NewWriter(out)
	return c.w.Write(csvHeader)
}

func (c *csvWriter) WritePage(records []Record) error {
	for _, r := range records {
		row := []string{
			r.Timestamp.UTC().Format(time.RFC3339),
			r.Actor,
			r.Action,
			r.Resource,
			r.Description,
			r.Outcome,
			r.IPAddress,
			r.SessionID,
		}
		if err := c.w.Write(row); err != nil {
			return err
		}
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *csvWriter) End() error {
	c.w.Flush()
	return c.w.Error()
}

type exportInfo struct {
	ExportID     string    `json:"exportId"`
	GeneratedAt  time.Time `json:"generatedAt"`
	Format       string    `json:"format"`
	TotalRecords int64     `json:"totalRecords"`
	Criteria     Criteria  `json:"criteria"`
}

// jsonWriter emits {"exportInfo": {...}, "auditLogs": [...]} without ever
// buffering the full record set.
type jsonWriter struct {
	out   io.Writer
	first bool
}

func (j *jsonWriter) Begin(out io.Writer, job Job) error {
	j.out = out
	j.first = true
	info, err := json.Marshal(exportInfo{
		ExportID:     job.ID.String(),
		GeneratedAt:  time.Now().UTC(),
		Format:       string(job.Format),
		TotalRecords: job.TotalRecords,
		Criteria:     job.Criteria,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, `{"exportInfo":%s,"auditLogs":[`, info)
	return err
}

func (j *jsonWriter) WritePage(records []Record) error {
	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if !j.first {
			if _, err := io.WriteString(j.out, ","); err != nil {
				return err
			}
		}
		j.first = false
		if _, err := j.out.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

func (j *jsonWriter) End() error {
	_, err := io.WriteString(j.out, "]}")
	return err
}

// pdfWriter emits a plain-text placeholder document. Real PDF rendering is a
// follow-up; the pipeline treats the format identically either way.
type pdfWriter struct {
	out   io.Writer
	total int64
}

func (p *pdfWriter) Begin(out io.Writer, job Job) error {
	p.out = out
	p.total = job.TotalRecords
	_, err := fmt.Fprintf(out, "Audit Log Export %s\nGenerated: %s\n\n",
		job.ID.String(), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (p *pdfWriter) WritePage(records []Record) error {
	for _, r := range records {
		_, err := fmt.Fprintf(p.out, "%s  %s  %s  %s  %s\n",
			r.Timestamp.UTC().Format(time.RFC3339), r.Actor, r.Action, r.Resource, r.Outcome)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *pdfWriter) End() error {
	_, err := fmt.Fprintf(p.out, "\nTotal records: %d\n", p.total)
	return err
}
