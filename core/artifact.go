package core

// ArtifactKind classifies artifact payloads.
type ArtifactKind string

const (
	ArtifactText  ArtifactKind = "text"
	ArtifactCode  ArtifactKind = "code"
	ArtifactImage ArtifactKind = "image"
	ArtifactFile  ArtifactKind = "file"
)

// Artifact is a payload produced by a tool. Small text payloads are stored
// inline in Content; binary payloads live in the FileStore under Path.
type Artifact struct {
	Identified
	InteractionID string       `json:"interaction_id,omitempty"`
	Kind          ArtifactKind `json:"kind"`
	Name          string       `json:"name,omitempty"`
	MimeType      string       `json:"mime_type,omitempty"`
	Content       string       `json:"content,omitempty"`
	Path          string       `json:"path,omitempty"`
}
