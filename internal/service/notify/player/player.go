package player

import (
	"errors"
	"io"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// ErrUnsupportedFormat формат не mp3 и не wav.
var ErrUnsupportedFormat = errors.New("unsupported sound format; use mp3 or wav")

// Speaker воспроизводит короткие звуки через системный аудиовыход.
type Speaker struct{ volumeDB float64 }

// New создаёт плеер без изменения громкости (0 dB).
func New() *Speaker { return &Speaker{} }

// NewWithVolume громкость в dB, отрицательные значения тише.
func NewWithVolume(db float64) *Speaker { return &Speaker{volumeDB: db} }

// Play декодирует поток и блокируется до конца воспроизведения.
func (s *Speaker) Play(format string, r io.ReadCloser) error {
	var (
		streamer beep.StreamSeekCloser
		f        beep.Format
		err      error
	)
	switch format {
	case "wav", "WAV":
		streamer, f, err = wav.Decode(r)
	case "mp3", "MP3":
		streamer, f, err = mp3.Decode(r)
	default:
		return ErrUnsupportedFormat
	}
	if err != nil {
		return err
	}
	defer streamer.Close()

	if err := speaker.Init(f.SampleRate, f.SampleRate.N(time.Second/10)); err != nil {
		return err
	}
	vol := &effects.Volume{
		Streamer: streamer,
		Base:     2,
		Volume:   s.volumeDB,
	}
	done := make(chan struct{})
	speaker.Play(beep.Seq(vol, beep.Callback(func() { close(done) })))
	<-done
	return nil
}
