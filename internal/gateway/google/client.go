package google

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/forms/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway"
	"github.com/Shailesh-Murmu/AutoMpp/internal/taskdef"
)

const responsesTabPrefix = "Form Responses"

// Client implements gateway.Storage over Drive, gateway.TabularSource over
// Sheets and gateway.FormSchema over Forms.
type Client struct {
	drive      *drive.Service
	sheets     *sheets.Service
	forms      *forms.Service
	newBackOff func() backoff.BackOff
}

func NewClient(ctx context.Context, ts oauth2.TokenSource) (*Client, error) {
	return NewClientWithOptions(ctx, option.WithTokenSource(ts))
}

func NewClientWithOptions(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	driveSvc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	sheetsSvc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	formsSvc, err := forms.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("forms service: %w", err)
	}
	return &Client{
		drive:      driveSvc,
		sheets:     sheetsSvc,
		forms:      formsSvc,
		newBackOff: defaultBackOff,
	}, nil
}

func (c *Client) List(ctx context.Context, container string) ([]gateway.Entry, error) {
	folderID := taskdef.ExtractGoogleID(container)
	query := fmt.Sprintf("'%s' in parents and trashed=false", strings.ReplaceAll(folderID, "'", `\'`))
	var entries []gateway.Entry
	err := c.retry(ctx, func() error {
		entries = entries[:0]
		return c.drive.Files.List().
			Q(query).
			Fields("nextPageToken, files(id, name, mimeType, modifiedTime, md5Checksum, size)").
			PageSize(1000).
			Pages(ctx, func(page *drive.FileList) error {
				for _, f := range page.Files {
					entries = append(entries, gateway.Entry{
						ID:           f.Id,
						Name:         f.Name,
						MIMEType:     f.MimeType,
						ModifiedTime: f.ModifiedTime,
						Fingerprint:  f.Md5Checksum,
						Size:         f.Size,
					})
				}
				return nil
			})
	})
	if err != nil {
		return nil, fmt.Errorf("list folder %s: %w", folderID, err)
	}
	return entries, nil
}

func (c *Client) Fetch(ctx context.Context, entry gateway.Entry, exportMIME string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := c.retry(ctx, func() error {
		if exportMIME != "" {
			resp, err := c.drive.Files.Export(entry.ID, exportMIME).Context(ctx).Download()
			if err != nil {
				return err
			}
			body = resp.Body
			return nil
		}
		resp, err := c.drive.Files.Get(entry.ID).Context(ctx).Download()
		if err != nil {
			return err
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", entry.Name, err)
	}
	return body, nil
}

// Read returns the response tab of a spreadsheet: the first tab whose title
// starts with "Form Responses", else the first tab.
func (c *Client) Read(ctx context.Context, ref string) (gateway.Table, error) {
	spreadsheetID := taskdef.ExtractGoogleID(ref)
	var meta *sheets.Spreadsheet
	err := c.retry(ctx, func() error {
		var err error
		meta, err = c.sheets.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
		return err
	})
	if err != nil {
		return gateway.Table{}, fmt.Errorf("spreadsheet %s: %w", spreadsheetID, err)
	}
	tab := responseTab(meta)
	if tab == "" {
		return gateway.Table{}, fmt.Errorf("spreadsheet %s has no tabs", spreadsheetID)
	}
	var values *sheets.ValueRange
	err = c.retry(ctx, func() error {
		var err error
		values, err = c.sheets.Spreadsheets.Values.Get(spreadsheetID, quoteSheetName(tab)).Context(ctx).Do()
		return err
	})
	if err != nil {
		return gateway.Table{}, fmt.Errorf("read %s!%s: %w", spreadsheetID, tab, err)
	}
	var table gateway.Table
	for i, row := range values.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprint(v)
		}
		if i == 0 {
			table.Header = cells
			continue
		}
		table.Rows = append(table.Rows, cells)
	}
	return table, nil
}

func responseTab(meta *sheets.Spreadsheet) string {
	if meta == nil || len(meta.Sheets) == 0 {
		return ""
	}
	for _, s := range meta.Sheets {
		if s.Properties != nil && strings.HasPrefix(s.Properties.Title, responsesTabPrefix) {
			return s.Properties.Title
		}
	}
	if meta.Sheets[0].Properties == nil {
		return ""
	}
	return meta.Sheets[0].Properties.Title
}

func quoteSheetName(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func (c *Client) Get(ctx context.Context, formID string) (gateway.Form, error) {
	formID = taskdef.ExtractGoogleID(formID)
	var form *forms.Form
	err := c.retry(ctx, func() error {
		var err error
		form, err = c.forms.Forms.Get(formID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return gateway.Form{}, fmt.Errorf("get form %s: %w", formID, err)
	}
	out := gateway.Form{ID: formID}
	for i, item := range form.Items {
		fi := gateway.FormItem{ItemID: item.ItemId, Title: item.Title, Index: i}
		if item.QuestionItem != nil && item.QuestionItem.Question != nil {
			fi.QuestionID = item.QuestionItem.Question.QuestionId
			fi.Required = item.QuestionItem.Question.Required
		}
		out.Items = append(out.Items, fi)
	}
	return out, nil
}

// BatchUpdate turns each matched item into a required-preserving dropdown in
// one request.
func (c *Client) BatchUpdate(ctx context.Context, formID string, updates []gateway.ChoiceUpdate) error {
	formID = taskdef.ExtractGoogleID(formID)
	req := &forms.BatchUpdateFormRequest{}
	for _, u := range updates {
		options := make([]*forms.Option, 0, len(u.Choices))
		for _, choice := range u.Choices {
			options = append(options, &forms.Option{Value: choice})
		}
		req.Requests = append(req.Requests, &forms.Request{
			UpdateItem: &forms.UpdateItemRequest{
				Item: &forms.Item{
					ItemId: u.Item.ItemID,
					Title:  u.Item.Title,
					QuestionItem: &forms.QuestionItem{
						Question: &forms.Question{
							QuestionId: u.Item.QuestionID,
							Required:   u.Item.Required,
							ChoiceQuestion: &forms.ChoiceQuestion{
								Type:    "DROP_DOWN",
								Options: options,
							},
						},
					},
				},
				Location:   &forms.Location{Index: int64(u.Item.Index), ForceSendFields: []string{"Index"}},
				UpdateMask: "questionItem",
			},
		})
	}
	return c.retry(ctx, func() error {
		_, err := c.forms.Forms.BatchUpdate(formID, req).Context(ctx).Do()
		return err
	})
}
