package model

import (
	"log"
	"os"
	"path/filepath"
)

// Artifact file names under the models directory.
const (
	MTScalerFile   = "mt_scaler.json"
	MTScalerNPFile = "mt_scaler_np.json"
	MTModelFile    = "mt_model.json"
	FIScalerFile   = "fi_scaler.json"
	FIScalerNPFile = "fi_scaler_np.json"
	FIModelFile    = "fi_model.json"
)

// Registry holds the loaded model and scaler artifacts for one session. It
// is constructed once by the lifecycle controller and passed into the
// predictor, so artifact state is session-scoped rather than a process-wide
// singleton.
type Registry struct {
	MTScaler Scaler
	MT       *MultitaskNet
	FIScaler Scaler
	FI       *SideNet
}

// LoadRegistry loads whatever artifacts exist under dir. Missing or
// malformed artifacts are not errors: each tier falls back to the next and
// the outcome is logged once at startup.
func LoadRegistry(dir string) *Registry {
	r := &Registry{
		MTScaler: loadScalerChain(dir, MTScalerFile, MTScalerNPFile),
		FIScaler: loadScalerChain(dir, FIScalerFile, FIScalerNPFile),
	}

	if m, err := loadMultitaskNet(filepath.Join(dir, MTModelFile)); err == nil {
		r.MT = m
		log.Printf("model: multitask network loaded (in_dim=%d)", m.InDim())
	} else {
		logArtifact(MTModelFile, err)
	}

	if m, err := loadSideNet(filepath.Join(dir, FIModelFile)); err == nil {
		r.FI = m
		log.Printf("model: per-side network loaded (in_dim=%d)", m.InDim())
	} else {
		logArtifact(FIModelFile, err)
	}

	if r.MT == nil && r.FI == nil {
		log.Print("model: no network artifacts; using closed-form rule")
	}
	return r
}

// loadScalerChain tries the primary artifact, then the version-independent
// mean/scale export, then gives up and returns the identity scaler.
func loadScalerChain(dir, primary, fallback string) Scaler {
	if s, err := loadAffineScaler(filepath.Join(dir, primary)); err == nil {
		log.Printf("model: scaler %s loaded (%d features)", primary, len(s.Mean))
		return s
	} else {
		logArtifact(primary, err)
	}
	if s, err := loadAffineScaler(filepath.Join(dir, fallback)); err == nil {
		log.Printf("model: scaler %s loaded (%d features)", fallback, len(s.Mean))
		return s
	} else {
		logArtifact(fallback, err)
	}
	log.Printf("model: no scaler for %s; using identity", primary)
	return IdentityScaler{}
}

func logArtifact(name string, err error) {
	if os.IsNotExist(err) {
		return // absence is the normal case, not worth a log line
	}
	log.Printf("model: artifact %s unusable: %v", name, err)
}
