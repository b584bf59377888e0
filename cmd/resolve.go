package cmd

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/imagepicker/internal/objecturl"
	"github.com/lehigh-university-libraries/imagepicker/internal/preview"
	"github.com/lehigh-university-libraries/imagepicker/internal/source"
)

// resolveReport is the YAML printed by the resolve command.
type resolveReport struct {
	State      preview.Snapshot `yaml:"state"`
	Submission *submissionView  `yaml:"submission,omitempty"`
	Objects    objecturl.Stats  `yaml:"object_urls"`
}

type submissionView struct {
	Source     string `yaml:"source"`
	FileName   string `yaml:"file_name,omitempty"`
	URL        string `yaml:"url,omitempty"`
	ImageBytes int    `yaml:"image_bytes,omitempty"`
}

func newResolveCmd(a *app) *cobra.Command {
	var filePath string
	var fileType string
	var rawURL string
	var dropText string
	var dropURIList string
	var doSubmit bool

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Run one image source through the preview pipeline",
		Long: `Feeds a single intake event to a fresh picker, waits for the preview
to settle and prints the resulting state as YAML.

Exactly one of --file, --url or a drop payload (--text and/or --uri-list)
must be given.`,
		Example: `  # Preview a local file
  imagepicker resolve --file cover.jpg

  # Simulate dropping a link that carries both a uri-list and plain text
  imagepicker resolve --uri-list https://example.com/cat.png --text "cat"

  # Resolve a URL and show what would be submitted
  imagepicker resolve --url https://example.com/cat.png --submit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			channels := 0
			for _, set := range []bool{filePath != "", rawURL != "", dropText != "" || dropURIList != ""} {
				if set {
					channels++
				}
			}
			if channels != 1 {
				return fmt.Errorf("exactly one of --file, --url or --text/--uri-list is required")
			}

			objects := objecturl.New(a.cfg.Origin)
			r := a.resolverFactory(objects, nil)()

			switch {
			case filePath != "":
				blob, err := readBlob(filePath, fileType)
				if err != nil {
					return err
				}
				r.SelectFiles([]*source.Blob{blob})
			case rawURL != "":
				r.ChangeURL(rawURL, source.URLFieldValid(rawURL))
			default:
				var p source.Payload
				if dropText != "" {
					p.Items = append(p.Items, source.TextItem(source.TypePlainText, dropText))
				}
				if dropURIList != "" {
					p.Items = append(p.Items, source.TextItem(source.TypeURIList, dropURIList))
				}
				r.Drop(p)
			}
			r.Wait()

			report := resolveReport{State: r.State()}
			if doSubmit {
				if sub, err := r.Submit(); err == nil {
					report.Submission = &submissionView{
						Source:     sub.Kind.String(),
						URL:        sub.URL,
						ImageBytes: len(sub.ImageData),
					}
					if sub.File != nil {
						report.Submission.FileName = sub.File.Name
					}
				}
				report.State = r.State()
			}
			r.Close()
			report.Objects = objects.Stats()

			out, err := yaml.Marshal(&report)
			if err != nil {
				return fmt.Errorf("failed to marshal YAML: %w", err)
			}
			if _, err := cmd.OutOrStdout().Write(out); err != nil {
				return err
			}

			if report.State.LastError != "" {
				return fmt.Errorf("%s", report.State.Feedback.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filePath, "file", "", "Image file to pick")
	cmd.Flags().StringVar(&fileType, "type", "", "Declared content type of --file (default: from extension, then sniffed)")
	cmd.Flags().StringVar(&rawURL, "url", "", "Value typed into the URL field")
	cmd.Flags().StringVar(&dropText, "text", "", "Plain text item of a dropped payload")
	cmd.Flags().StringVar(&dropURIList, "uri-list", "", "URI list item of a dropped payload")
	cmd.Flags().BoolVar(&doSubmit, "submit", false, "Trigger submit after the preview settles")

	return cmd
}

// readBlob loads a local file the way a file picker would, declaring its
// content type from the extension when not given.
func readBlob(path, contentType string) (*source.Blob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(path))
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &source.Blob{Name: filepath.Base(path), ContentType: contentType, Data: data}, nil
}
