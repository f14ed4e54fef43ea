// Package fields defines the index field vocabulary, the cardinality of every field,
// and the ordered field map records are assembled in.
package fields

// Multiplicity tells how many values a field holds.
type Multiplicity int

const (
	// Single fields hold exactly one scalar; later assignments are conflicts.
	Single Multiplicity = iota
	// Multi fields are append-only ordered lists.
	Multi
	// MultiPositional fields are stored like Multi but their entries need
	// position-aware text handling downstream.
	MultiPositional
)

func (m Multiplicity) String() string {
	switch m {
	case Multi:
		return "multi"
	case MultiPositional:
		return "multi-positional"
	default:
		return "single"
	}
}

// Volume constants, seeded into every record.
const (
	Collection     = "collection_ssi"
	Druid          = "druid_ssi"
	VolumeNumber   = "vol_num_ssi"
	VolumeLabel    = "vol_label_ssi"
	VolumeTitle    = "vol_title_ssi"
	VolumeStart    = "vol_date_start_dti"
	VolumeEnd      = "vol_date_end_dti"
	VolumeFileName = "vol_file_name_ssm"
	VolumeFileSize = "vol_file_size_lsm"
	VolumePages    = "vol_total_pages_is"
)

// Record-level fields.
const (
	Type          = "type_ssi"
	Text          = "text_tiv"
	Speaker       = "speaker_ssim"
	SpokenText    = "spoken_text_timv"
	UnspokenText  = "unspoken_text_timv"
	PageSequence  = "page_sequence_isi"
	PageNumber    = "page_num_ssi"
	PageIDs       = "page_id_ssim"
	SectionIDs    = "section_id_ssim"
	FirstSequence = "session_seq_first_isi"
)

// Section-level fields as stored on the section record.
const (
	DocType     = "doc_type_ssi"
	SessionDate = "session_date_dtsi"
	DateValue   = "session_date_val_ssi"
	Title       = "session_title_ftsi"
	Heading     = "session_heading_ssi"
)

// Section-level fields as stamped onto page records; a page can overlap two sections.
const (
	PageDocType     = "doc_type_ssim"
	PageSessionDate = "session_date_dtsim"
	PageDateValue   = "session_date_val_ssim"
	PageTitle       = "session_title_ftsim"
	PageHeading     = "session_heading_ssim"
)

var multiplicities = map[string]Multiplicity{
	Collection:     Single,
	Druid:          Single,
	VolumeNumber:   Single,
	VolumeLabel:    Single,
	VolumeTitle:    Single,
	VolumeStart:    Single,
	VolumeEnd:      Single,
	VolumeFileName: Multi,
	VolumeFileSize: Multi,
	VolumePages:    Single,

	Type:          Single,
	Text:          Single,
	Speaker:       Multi,
	SpokenText:    MultiPositional,
	UnspokenText:  MultiPositional,
	PageSequence:  Single,
	PageNumber:    Single,
	PageIDs:       Multi,
	SectionIDs:    Multi,
	FirstSequence: Single,

	DocType:     Single,
	SessionDate: Single,
	DateValue:   Single,
	Title:       Single,
	Heading:     Single,

	PageDocType:     Multi,
	PageSessionDate: Multi,
	PageDateValue:   Multi,
	PageTitle:       Multi,
	PageHeading:     Multi,
}

// MultiplicityOf returns the declared multiplicity of key. Undeclared keys are Single.
func MultiplicityOf(key string) Multiplicity {
	return multiplicities[key]
}

// Positional reports whether key's values need position-aware handling downstream.
func Positional(key string) bool {
	return multiplicities[key] == MultiPositional
}

// VolumeConstant reports whether key is one of the per-volume constant fields.
func VolumeConstant(key string) bool {
	switch key {
	case Collection, Druid, VolumeNumber, VolumeLabel, VolumeTitle,
		VolumeStart, VolumeEnd, VolumeFileName, VolumeFileSize, VolumePages:
		return true
	}
	return false
}
