package models

import (
	"time"
)

// Modality identifies the input method that produced a still image.
type Modality string

const (
	ModalityFreehand Modality = "freehand"
	ModalityImported Modality = "imported"
	ModalityCamera   Modality = "camera"
)

func ValidModalities() []Modality {
	return []Modality{ModalityFreehand, ModalityImported, ModalityCamera}
}

func (m Modality) IsValid() bool {
	switch m {
	case ModalityFreehand, ModalityImported, ModalityCamera:
		return true
	}
	return false
}

func (m Modality) String() string {
	return string(m)
}

// Stage is one of the three canonical HTP capture steps.
type Stage string

const (
	StageHouse  Stage = "house"
	StageTree   Stage = "tree"
	StagePerson Stage = "person"
)

// Stages returns the capture stages in test order.
func Stages() []Stage {
	return []Stage{StageHouse, StageTree, StagePerson}
}

func (s Stage) IsValid() bool {
	switch s {
	case StageHouse, StageTree, StagePerson:
		return true
	}
	return false
}

func (s Stage) String() string {
	return string(s)
}

// Title returns the on-screen heading for the stage.
func (s Stage) Title() string {
	switch s {
	case StageHouse:
		return "집을 그려보세요"
	case StageTree:
		return "나무를 그려보세요"
	case StagePerson:
		return "사람을 그려보세요"
	}
	return ""
}

// Instruction returns the guidance text shown below the stage title.
func (s Stage) Instruction() string {
	switch s {
	case StageHouse:
		return "가족 혹은 자신의 내면 세계를 상징하는 집을 그려주세요."
	case StageTree:
		return "무의식적인 성격과 내면의 에너지를 상징하는 나무를 그려주세요."
	case StagePerson:
		return "사회적 관계 속에서 비춰지는 전신 사람상을 그려주세요."
	}
	return ""
}

// CapturedImage is the committed output of one capture stage: a losslessly
// encoded raster plus the modality that produced it. Immutable once created.
type CapturedImage struct {
	PNG        []byte
	Width      int
	Height     int
	Modality   Modality
	CapturedAt time.Time
}

// DrawingSet holds the three stage images of one test run.
type DrawingSet struct {
	House  *CapturedImage
	Tree   *CapturedImage
	Person *CapturedImage
}

func (d *DrawingSet) Get(stage Stage) *CapturedImage {
	switch stage {
	case StageHouse:
		return d.House
	case StageTree:
		return d.Tree
	case StagePerson:
		return d.Person
	}
	return nil
}

func (d *DrawingSet) Set(stage Stage, img *CapturedImage) {
	switch stage {
	case StageHouse:
		d.House = img
	case StageTree:
		d.Tree = img
	case StagePerson:
		d.Person = img
	}
}

// Complete reports whether all three stages have been captured.
func (d *DrawingSet) Complete() bool {
	return d != nil && d.House != nil && d.Tree != nil && d.Person != nil
}

func (d *DrawingSet) Count() int {
	if d == nil {
		return 0
	}
	n := 0
	for _, stage := range Stages() {
		if d.Get(stage) != nil {
			n++
		}
	}
	return n
}

// Trait scores reported by the reasoning service are bounded to this range.
const (
	TraitScoreMin = 0
	TraitScoreMax = 100
)

type PersonalityTrait struct {
	Trait       string  `json:"trait"`
	Score       float64 `json:"score"`
	Description string  `json:"description"`
}

// AnalysisResult is one completed HTP interpretation. ID and Date are
// assigned locally at analysis time; the remaining fields come from the
// reasoning service and are immutable after creation.
type AnalysisResult struct {
	ID                string             `json:"id"`
	Date              time.Time          `json:"date"`
	Summary           string             `json:"summary"`
	PersonalityTraits []PersonalityTrait `json:"personalityTraits"`
	EmotionalState    string             `json:"emotionalState"`
	Advice            string             `json:"advice"`
	KeyInsights       []string           `json:"keyInsights"`
}

// ChatRole tags one conversation turn. The wire protocol uses "user" and
// "model", matching the reasoning service's role vocabulary.
type ChatRole string

const (
	RoleUser  ChatRole = "user"
	RoleModel ChatRole = "model"
)

type ChatTurn struct {
	Role ChatRole `json:"role"`
	Text string   `json:"text"`
}
