package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// nowFunc is swapped in tests to pin filenames.
var nowFunc = time.Now

// outputPath builds <root>/<camera>/<YYYY-MM>/<camera>_<YYYY-MM-DD_HH-MM-SS>.jpg
// and creates the month directory. Concurrent fires for the same camera in
// the same second get a numeric suffix instead of clobbering each other.
func outputPath(root, camera string, now time.Time) (string, error) {
	dir := filepath.Join(root, camera, now.Format("2006-01"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create capture dir: %w", err)
	}

	base := fmt.Sprintf("%s_%s", camera, now.Format("2006-01-02_15-04-05"))
	path := filepath.Join(dir, base+".jpg")
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.jpg", base, i))
	}
}
