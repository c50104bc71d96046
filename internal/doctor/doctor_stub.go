//go:build !whisper

package doctor

func checkPortAudio() Result {
	return Result{Name: "speech", Pass: true, Detail: "built without -tags whisper; use call --text"}
}
