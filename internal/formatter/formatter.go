// package formatter provides functions to export play history to various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"vinylog/internal/models"
	"vinylog/internal/shared"
)

// defaultBaseName is used when no output path is given.
const defaultBaseName = "vinylog"

// ExportToCSV converts a play history to CSV format with columns: ID, Title, Artist, Year, Date Listened, Discogs URL
func ExportToCSV(history []models.Play) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Artist", "Year", "Date Listened", "Discogs URL"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, play := range history {
		record := []string{
			play.ID,
			play.Title,
			play.Artist,
			play.Year,
			play.DateListened,
			play.DiscogsURL,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a play history to Markdown format with optional cover image
func ExportToMarkdown(history []models.Play, stats models.CartridgeStats, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Vinyl Play History\n\n")

	if imageFilename != "" {
		buf.WriteString(fmt.Sprintf("![Cover](%s)\n\n", imageFilename))
	}

	buf.WriteString(fmt.Sprintf("**Total plays**: %d\n", stats.TotalPlays))
	buf.WriteString(fmt.Sprintf("**Logged plays**: %d\n\n", len(history)))

	buf.WriteString("## Plays\n\n")
	for i, play := range history {
		date := play.DateListened
		if date == "" {
			date = "undated"
		}
		yearPart := ""
		if play.Year != "" {
			yearPart = fmt.Sprintf(" (%s)", play.Year)
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s%s [%s]\n", i+1, play.Artist, play.Title, yearPart, date))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a play history to plain text format
func ExportToText(history []models.Play, stats models.CartridgeStats) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("Vinyl Play History\n")
	buf.WriteString(fmt.Sprintf("Total plays: %d\n", stats.TotalPlays))
	buf.WriteString(fmt.Sprintf("Logged plays: %d\n\n", len(history)))

	for i, play := range history {
		date := play.DateListened
		if date == "" {
			date = "undated"
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s [%s]\n", i+1, play.Artist, play.Title, date))
	}

	return buf.Bytes(), nil
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// ToStatsJSON generates a JSON representation of the aggregate stats
func ToStatsJSON(stats models.CartridgeStats) ([]byte, error) {
	return shared.MarshalJSON(stats, true)
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	PlaysFile string
	StatsFile string
}

// WriteCSVExport exports a play history to CSV format with an accompanying stats JSON file.
//
// Defaults to "vinylog" as the base filename & creates {base}_plays.csv and {base}_stats.json
func WriteCSVExport(history []models.Play, stats models.CartridgeStats, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = defaultBaseName
	}

	csvData, err := ExportToCSV(history)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	playsFile := baseFilepath + "_plays.csv"
	if err := os.WriteFile(playsFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	statsJSON, err := ToStatsJSON(stats)
	if err != nil {
		return nil, fmt.Errorf("failed to generate stats JSON: %w", err)
	}

	statsFile := baseFilepath + "_stats.json"
	if err := os.WriteFile(statsFile, statsJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write stats file: %w", err)
	}

	return &CSVExportResult{
		PlaysFile: playsFile,
		StatsFile: statsFile,
	}, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
}

// WriteMarkdownExport exports a play history to Markdown format in a dedicated directory.
//
// Directory name defaults to "vinylog".
// The imageURL parameter is optional - if provided, attempts to download a cover image.
// Creates a directory structure: {dir}/README.md and optionally {dir}/cover.jpg
func WriteMarkdownExport(history []models.Play, stats models.CartridgeStats, outputDir string, imageURL string) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = defaultBaseName
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{
		Directory: outputDir,
		Files:     []string{},
	}

	var coverImageFilename string
	if imageURL != "" {
		imageData, err := DownloadImage(imageURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to download cover image: %v\n", err)
		} else {
			coverImageFilename = "cover.jpg"
			coverImagePath := fmt.Sprintf("%s/%s", outputDir, coverImageFilename)
			if err := os.WriteFile(coverImagePath, imageData, 0644); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to save cover image: %v\n", err)
				coverImageFilename = ""
			} else {
				result.CoverImage = coverImagePath
				result.Files = append(result.Files, coverImagePath)
			}
		}
	}

	mdData, err := ExportToMarkdown(history, stats, coverImageFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := fmt.Sprintf("%s/README.md", outputDir)
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}

	result.Files = append(result.Files, mdFile)

	return result, nil
}

// WriteTextExport exports a play history to plain text format.
//
// Defaults to vinylog_plays.txt as the filename.
func WriteTextExport(history []models.Play, stats models.CartridgeStats, filepath string) (string, error) {
	if filepath == "" {
		filepath = fmt.Sprintf("%s_plays.txt", defaultBaseName)
	}

	textData, err := ExportToText(history, stats)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(filepath, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return filepath, nil
}
