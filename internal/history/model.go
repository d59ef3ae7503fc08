package history

import (
	"time"

	"github.com/BaSui01/patloader/artifact"
)

// ArtifactVersionRecord 一次成功加载的持久化记录
type ArtifactVersionRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Size      string    `gorm:"size:16;not null;index:idx_artifact_versions_size_loaded,priority:1"`
	Version   string    `gorm:"size:128;not null"`
	Checksum  string    `gorm:"size:128"`
	Algorithm string    `gorm:"size:16"`
	Source    string    `gorm:"size:16"`
	LoadMs    float64   `gorm:"column:load_ms"`
	LoadedAt  time.Time `gorm:"not null;index:idx_artifact_versions_size_loaded,priority:2"`
	CreatedAt time.Time
}

// TableName 指定表名
func (ArtifactVersionRecord) TableName() string {
	return "artifact_versions"
}

func recordFrom(v artifact.ArtifactVersion) ArtifactVersionRecord {
	return ArtifactVersionRecord{
		Size:      string(v.Size),
		Version:   v.Version,
		Checksum:  v.Checksum,
		Algorithm: string(v.Algorithm),
		Source:    string(v.Source),
		LoadMs:    v.Metrics["load_ms"],
		LoadedAt:  v.LoadedAt,
	}
}

// ToVersion 转换回 artifact.ArtifactVersion
func (r ArtifactVersionRecord) ToVersion() artifact.ArtifactVersion {
	return artifact.ArtifactVersion{
		Version:   r.Version,
		LoadedAt:  r.LoadedAt,
		Checksum:  r.Checksum,
		Algorithm: artifact.Algorithm(r.Algorithm),
		Size:      artifact.Size(r.Size),
		Source:    artifact.Source(r.Source),
		Metrics:   map[string]float64{"load_ms": r.LoadMs},
	}
}
