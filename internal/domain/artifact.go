package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// TimestampLayout sorts lexically in chronological order.
const TimestampLayout = "20060102_150405"

// Artifact is one stored backup of one element at one capture time.
type Artifact struct {
	Title     string
	Name      string
	CreatedAt time.Time
	LocalPath string
	RemoteKey string
	Size      int64
}

// ArtifactName builds the file name shared by the local copy and the
// remote object. It depends only on its arguments.
func ArtifactName(title string, createdAt time.Time, ext string) string {
	return fmt.Sprintf("%s_%s%s", title, createdAt.UTC().Format(TimestampLayout), ext)
}

// ParseArtifactName reverses ArtifactName for the given title. ok is false
// when name does not belong to title.
func ParseArtifactName(title, name string) (createdAt time.Time, ext string, ok bool) {
	rest, found := strings.CutPrefix(name, title+"_")
	if !found || len(rest) < len(TimestampLayout) {
		return time.Time{}, "", false
	}

	ts, ext := rest[:len(TimestampLayout)], rest[len(TimestampLayout):]
	if ext != "" && !strings.HasPrefix(ext, ".") {
		return time.Time{}, "", false
	}
	if strings.HasSuffix(ext, PartialSuffix) {
		return time.Time{}, "", false
	}

	createdAt, err := time.ParseInLocation(TimestampLayout, ts, time.UTC)
	if err != nil {
		return time.Time{}, "", false
	}
	return createdAt, ext, true
}

// PartialSuffix marks a local file that is still being written.
const PartialSuffix = ".partial"

// RemoteKey joins the element's remote folder and the artifact name.
func RemoteKey(folder, name string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

// SortNewestFirst orders artifacts by capture time, newest first, breaking
// ties by name so the order is stable.
func SortNewestFirst(artifacts []Artifact) {
	sort.SliceStable(artifacts, func(i, j int) bool {
		if !artifacts[i].CreatedAt.Equal(artifacts[j].CreatedAt) {
			return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
		}
		return artifacts[i].Name > artifacts[j].Name
	})
}
