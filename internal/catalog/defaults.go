package catalog

import (
	"path/filepath"
	"runtime"
	"strconv"
)

// Default returns the built-in whisper and tts definitions, laid out under
// root as <root>/<name>/venv with a uvicorn launcher.
func Default(root string) *Catalog {
	c, err := New(
		Definition{
			Name:     "whisper",
			Dir:      filepath.Join(root, "whisper"),
			Command:  uvicornPath(root, "whisper"),
			Args:     uvicornArgs(8100),
			Port:     8100,
			Model:    "openai/whisper large-v3",
			Task:     "speech-to-text",
			Endpoint: "/transcribe",
			Input:    "audio file (multipart upload)",
			Output:   "JSON with text, language, duration",
		},
		Definition{
			Name:     "tts",
			Dir:      filepath.Join(root, "tts"),
			Command:  uvicornPath(root, "tts"),
			Args:     uvicornArgs(8200),
			Port:     8200,
			Model:    "Qwen/Qwen3-TTS-12Hz-1.7B-CustomVoice",
			Task:     "text-to-speech",
			Endpoint: "/synthesize",
			Input:    "JSON with text, speaker, language, instruct",
			Output:   "WAV audio",
		},
	)
	if err != nil {
		// The literals above are valid; reaching this is a programming error.
		panic(err)
	}
	return c
}

func uvicornPath(root, name string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(root, name, "venv", "Scripts", "uvicorn.exe")
	}
	return filepath.Join(root, name, "venv", "bin", "uvicorn")
}

func uvicornArgs(port int) []string {
	return []string{"server:app", "--host", "0.0.0.0", "--port", strconv.Itoa(port)}
}
