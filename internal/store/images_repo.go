package store

import (
	"database/sql"
	"time"
)

// InsertImage registers a produced continuum image.
func (s *Store) InsertImage(img ImageRecord) error {
	return s.withWrite(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO images(image_path, ms_path, center_ra_deg, center_dec_deg, noise_jy,
				beam_major_arcsec, beam_minor_arcsec, beam_pa_deg, quality, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, img.ImagePath, img.MSPath, img.CenterRADeg, img.CenterDecDeg, img.NoiseJy,
			img.BeamMajorArcsec, img.BeamMinorArcsec, img.BeamPADeg, string(img.Quality), img.CreatedAt.Unix())
		return err
	})
}

// ImagesByMS returns every image produced from a given MS.
func (s *Store) ImagesByMS(msPath string) ([]ImageRecord, error) {
	rows, err := s.readDB.Query(`
		SELECT image_path, ms_path, center_ra_deg, center_dec_deg, noise_jy,
			beam_major_arcsec, beam_minor_arcsec, beam_pa_deg, quality, created_at
		FROM images WHERE ms_path = ? ORDER BY created_at ASC
	`, msPath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ImageRecord
	for rows.Next() {
		var img ImageRecord
		var quality string
		var created int64
		if err := rows.Scan(&img.ImagePath, &img.MSPath, &img.CenterRADeg, &img.CenterDecDeg, &img.NoiseJy,
			&img.BeamMajorArcsec, &img.BeamMinorArcsec, &img.BeamPADeg, &quality, &created); err != nil {
			return nil, err
		}
		img.Quality = ImageQuality(quality)
		img.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, img)
	}
	return out, rows.Err()
}
