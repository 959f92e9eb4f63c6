package image

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/vtcode/vtcode/internal/provider"
)

// ReadImageFromClipboard pulls a PNG off the system clipboard via the
// platform's clipboard utility. A nil, nil return means the clipboard
// simply held no image.
func ReadImageFromClipboard() (*ImageInfo, error) {
	switch runtime.GOOS {
	case "darwin":
		return clipboardImageDarwin()
	case "linux":
		return clipboardImageLinux()
	default:
		return nil, fmt.Errorf("clipboard not supported on %s", runtime.GOOS)
	}
}

// ReadImageToProviderData is ReadImageFromClipboard pre-converted for a
// user message attachment.
func ReadImageToProviderData() (*provider.ImageData, error) {
	info, err := ReadImageFromClipboard()
	if err != nil || info == nil {
		return nil, err
	}
	data := info.ToProviderData()
	return &data, nil
}

// wrapClipboardPNG validates raw clipboard bytes into an ImageInfo.
func wrapClipboardPNG(data []byte) (*ImageInfo, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) > MaxImageSize {
		return nil, fmt.Errorf("clipboard image too large: %d bytes (max %d)", len(data), MaxImageSize)
	}
	return &ImageInfo{
		MediaType: "image/png",
		Data:      data,
		Size:      len(data),
		FileName:  "clipboard_" + time.Now().Format("150405") + ".png",
	}, nil
}

// clipboardImageDarwin asks osascript to dump the clipboard's PNG class
// into a temp file, since pbpaste cannot emit binary image data.
func clipboardImageDarwin() (*ImageInfo, error) {
	tmp := filepath.Join(os.TempDir(), fmt.Sprintf("clipboard_%d.png", time.Now().UnixNano()))
	defer os.Remove(tmp)

	script := fmt.Sprintf(`
		set theFile to POSIX file "%s"
		try
			set imgData to the clipboard as «class PNGf»
			set fileRef to open for access theFile with write permission
			write imgData to fileRef
			close access fileRef
			return "ok"
		on error
			return "no image"
		end try
	`, tmp)

	out, err := exec.Command("osascript", "-e", script).Output()
	if err != nil {
		return nil, fmt.Errorf("failed to read clipboard: %w", err)
	}
	if strings.TrimSpace(string(out)) == "no image" {
		return nil, nil
	}

	data, err := os.ReadFile(tmp)
	if err != nil {
		return nil, fmt.Errorf("failed to read clipboard image: %w", err)
	}
	return wrapClipboardPNG(data)
}

// clipboardImageLinux tries xclip, then xsel. Absence of both (or of an
// image on the clipboard) is not an error.
func clipboardImageLinux() (*ImageInfo, error) {
	data, err := exec.Command("xclip", "-selection", "clipboard", "-t", "image/png", "-o").Output()
	if err != nil {
		data, err = exec.Command("xsel", "--clipboard", "--output").Output()
		if err != nil {
			return nil, nil
		}
	}
	return wrapClipboardPNG(data)
}
