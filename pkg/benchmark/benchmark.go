// Package benchmark names the moving parts of the AToMiC BM25 baseline (splits,
// settings, fields, modalities and search directions) and where each artifact
// lives under the output root.
package benchmark

import "fmt"

// Split is a partition of the AToMiC datasets.
type Split string

const (
	SplitTrain      Split = "train"
	SplitValidation Split = "validation"
	SplitTest       Split = "test"
	SplitOther      Split = "other"
)

// Splits lists every split, in the order the pipeline processes them.
var Splits = []Split{SplitTrain, SplitValidation, SplitTest, SplitOther}

// ParseSplit validates s as a split name.
func ParseSplit(s string) (Split, error) {
	for _, split := range Splits {
		if string(split) == s {
			return split, nil
		}
	}
	return "", fmt.Errorf("unknown split %q", s)
}

// Setting selects which shards make up a collection.
type Setting string

const (
	// SettingSmall uses only the shards of a single split.
	SettingSmall Setting = "small"
	// SettingBase uses the train, validation and test shards.
	SettingBase Setting = "base"
	// SettingLarge uses every shard of the collection, other included.
	SettingLarge Setting = "large"
)

// Settings lists every setting, in pipeline order.
var Settings = []Setting{SettingSmall, SettingBase, SettingLarge}

// ParseSetting validates s as a setting name.
func ParseSetting(s string) (Setting, error) {
	for _, setting := range Settings {
		if string(setting) == s {
			return setting, nil
		}
	}
	return "", fmt.Errorf("unknown setting %q", s)
}

// Modality is the kind of item a collection holds.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
)

// Modalities lists both modalities, text first.
var Modalities = []Modality{ModalityText, ModalityImage}

// shardSuffix is the infix used in shard and topic file names.
func (m Modality) shardSuffix() string {
	if m == ModalityImage {
		return "image-caption"
	}
	return "text"
}

// Field is an encodable field of the AToMiC datasets.
type Field string

const (
	// FieldText is a Wikipedia section, encoded from the texts dataset.
	FieldText Field = "text"
	// FieldImageCaption is an image described by its captions, encoded from
	// the images dataset.
	FieldImageCaption Field = "image_caption"
)

// Fields lists both fields, in pipeline order.
var Fields = []Field{FieldText, FieldImageCaption}

// Modality returns the collection a field is encoded into.
func (f Field) Modality() Modality {
	if f == FieldImageCaption {
		return ModalityImage
	}
	return ModalityText
}

// Direction is a cross-modal search direction.
type Direction string

const (
	// DirectionI2T searches the text index with image topics.
	DirectionI2T Direction = "i2t"
	// DirectionT2I searches the image index with text topics.
	DirectionT2I Direction = "t2i"
)

// Directions lists both directions, in the order they are searched.
var Directions = []Direction{DirectionI2T, DirectionT2I}

// IndexModality is the modality of the index a direction searches.
func (d Direction) IndexModality() Modality {
	if d == DirectionT2I {
		return ModalityImage
	}
	return ModalityText
}

// TopicModality is the modality of the topics a direction issues.
func (d Direction) TopicModality() Modality {
	if d == DirectionT2I {
		return ModalityText
	}
	return ModalityImage
}
