// Package export writes graded prospects to spreadsheets for sales reps.
package export

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/prospector/internal/model"
)

// SheetName is the worksheet that holds the prospect rows.
const SheetName = "Prospects"

// Header is the first row of the export.
var Header = []string{
	"Website", "Business Name", "City", "Status", "Grade", "Grade Reason", "Music Focus",
	"Phone", "Email", "Facebook", "Instagram", "Icebreakers", "Last Gathered",
}

// Build creates a workbook with one row per prospect.
func Build(prospects []model.Prospect) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return nil, eris.Wrap(err, "export: add sheet")
	}

	hdr := sheet.AddRow()
	for _, h := range Header {
		hdr.AddCell().SetString(h)
	}

	for _, p := range prospects {
		row := sheet.AddRow()
		for _, v := range []string{
			p.Website,
			p.BusinessName,
			p.City,
			string(p.Status),
			gradeString(p.AIGrade),
			model.Deref(p.AIGradeReason),
		} {
			row.AddCell().SetString(v)
		}

		music := row.AddCell()
		if p.AIMusicFocus != nil {
			music.SetBool(*p.AIMusicFocus)
		}

		for _, v := range []*string{p.Phone, p.Email, p.Facebook, p.Instagram, p.Icebreakers} {
			row.AddCell().SetString(model.Deref(v))
		}

		gathered := row.AddCell()
		if p.LastGather != nil {
			gathered.SetString(p.LastGather.UTC().Format(time.RFC3339))
		}
	}
	return f, nil
}

// WriteTo streams the workbook to w.
func WriteTo(w io.Writer, prospects []model.Prospect) error {
	f, err := Build(prospects)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write workbook")
}

// Save writes the workbook to path.
func Save(path string, prospects []model.Prospect) error {
	f, err := Build(prospects)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func gradeString(g *model.Grade) string {
	if g == nil {
		return ""
	}
	return string(*g)
}
