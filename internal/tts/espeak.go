// Package tts speaks through espeak-ng.
package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
hv_init(void)
{
	return espeak_Initialize(AUDIO_OUTPUT_PLAYBACK, 500, NULL, 0);
}

static int
hv_voice_count(void)
{
	const espeak_VOICE **v = espeak_ListVoices(NULL);
	int n = 0;
	while (v && v[n])
	{ n++; }
	return n;
}

static const char *
hv_voice_name(int i)
{
	const espeak_VOICE **v = espeak_ListVoices(NULL);
	return v[i]->name;
}

// languages is a list of (priority byte, string) pairs; return the first.
static const char *
hv_voice_lang(int i)
{
	const espeak_VOICE **v = espeak_ListVoices(NULL);
	if (!v[i]->languages || !v[i]->languages[0])
	{ return ""; }
	return v[i]->languages + 1;
}

static int
hv_synth(const char *text)
{
	return espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0,
		espeakCHARS_AUTO, NULL, NULL);
}
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"homevox/internal/speech"
)

const (
	baseRate  = 175 // words per minute at rate 1.0
	basePitch = 50  // espeak pitch at pitch 1.0, range 0-100
	pollEvery = 20 * time.Millisecond
)

var (
	initOnce sync.Once
	initErr  error
)

// Espeak is a speech.Synthesizer. espeak-ng is process global, so one
// utterance plays at a time.
type Espeak struct {
	mu     sync.Mutex
	voices []speech.Voice
}

func NewEspeak() (*Espeak, error) {
	initOnce.Do(func() {
		if rc := C.hv_init(); rc < 0 {
			initErr = fmt.Errorf("espeak_Initialize failed: %d", int(rc))
		}
	})
	if initErr != nil {
		return nil, initErr
	}

	n := int(C.hv_voice_count())
	voices := make([]speech.Voice, 0, n)
	for i := 0; i < n; i++ {
		voices = append(voices, speech.Voice{
			Name: C.GoString(C.hv_voice_name(C.int(i))),
			Lang: C.GoString(C.hv_voice_lang(C.int(i))),
		})
	}

	return &Espeak{voices: voices}, nil
}

func (e *Espeak) Voices() []speech.Voice {
	return append([]speech.Voice(nil), e.voices...)
}

// Synthesize plays u and waits for playback to end. Cancelling ctx cuts the
// audio off.
func (e *Espeak) Synthesize(ctx context.Context, u speech.Utterance) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if u.Voice != nil {
		cname := C.CString(u.Voice.Name)
		rc := C.espeak_SetVoiceByName(cname)
		C.free(unsafe.Pointer(cname))
		if rc != C.EE_OK {
			return fmt.Errorf("set voice %q: %d", u.Voice.Name, int(rc))
		}
	}

	C.espeak_SetParameter(C.espeakRATE, C.int(scale(baseRate, u.Rate, 80, 450)), 0)
	C.espeak_SetParameter(C.espeakPITCH, C.int(scale(basePitch, u.Pitch, 0, 100)), 0)

	ctext := C.CString(u.Text)
	defer C.free(unsafe.Pointer(ctext))

	if rc := C.hv_synth(ctext); rc != C.EE_OK {
		return fmt.Errorf("espeak_Synth failed: %d", int(rc))
	}

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for C.espeak_IsPlaying() != 0 {
		select {
		case <-ctx.Done():
			C.espeak_Cancel()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func scale(base int, factor float64, lo, hi int) int {
	if factor <= 0 {
		factor = 1
	}
	return max(lo, min(hi, int(float64(base)*factor)))
}
