package main

import (
	"fmt"
	"log"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// romview renders a 64 KiB bank of a ROM image as a 256x256 byte map, one
// pixel per byte, so compiled output and deferred writes are easy to spot
// against the zeroed fill left by a reset pass. Arrow keys page through
// banks.

const bankSize = 0x10000

type Viewer struct {
	rom     []byte
	header  int // 0x200 when a copier header is present
	bank    int
	bankImg *ebiten.Image // reused 256x256 canvas
}

func (v *Viewer) bankCount() int {
	return (len(v.rom) - v.header + bankSize - 1) / bankSize
}

// bankName returns the virtual bank corresponding to a physical bank index,
// per the HiROM mapping: physical 00-3F is virtual C0-FF, physical 40-5F
// maps to itself.
func (v *Viewer) bankName() string {
	if v.bank < 0x40 {
		return fmt.Sprintf("%02X", 0xC0+v.bank)
	}
	return fmt.Sprintf("%02X", v.bank)
}

func (v *Viewer) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowRight) && v.bank < v.bankCount()-1 {
		v.bank++
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowLeft) && v.bank > 0 {
		v.bank--
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyPageDown) {
		v.bank += 0x10
		if v.bank >= v.bankCount() {
			v.bank = v.bankCount() - 1
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyPageUp) {
		v.bank -= 0x10
		if v.bank < 0 {
			v.bank = 0
		}
	}
	return nil
}

func (v *Viewer) Draw(screen *ebiten.Image) {
	if v.bankImg == nil {
		v.bankImg = ebiten.NewImage(256, 256)
	}

	pixels := make([]byte, 256*256*4)
	base := v.header + v.bank*bankSize
	for i := 0; i < bankSize; i++ {
		var b byte
		if base+i < len(v.rom) {
			b = v.rom[base+i]
		}
		pixels[i*4+0] = b
		pixels[i*4+1] = b
		pixels[i*4+2] = b
		pixels[i*4+3] = 0xFF
	}
	v.bankImg.WritePixels(pixels)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(2, 2)
	screen.DrawImage(v.bankImg, op)

	msg := fmt.Sprintf("bank %s  $%s0000-$%sFFFF  (%d/%d)",
		v.bankName(), v.bankName(), v.bankName(), v.bank+1, v.bankCount())
	ebitenutil.DebugPrintAt(screen, msg, 4, 496)
}

func (v *Viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	return 512, 512
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: romview <romfile>")
		os.Exit(1)
	}

	rom, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to read ROM: %v", err)
	}

	header := 0
	if len(rom)&0x200 != 0 {
		header = 0x200
	}

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(512, 512)
	ebiten.SetWindowTitle("CCScript ROM Viewer - " + os.Args[1])

	if err := ebiten.RunGame(&Viewer{rom: rom, header: header}); err != nil {
		log.Fatal(err)
	}
}
