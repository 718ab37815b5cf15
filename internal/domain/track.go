package domain

// TrackMeta is the metadata written into finished audio files.
type TrackMeta struct {
	Title  string
	Artist string
}
