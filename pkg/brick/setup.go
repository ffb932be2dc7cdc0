package brick

import (
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/itohio/brickheat/pkg/console"
)

// Setup runs the bench main menu: dump the stores, reset the retained memory
// or hand over to a feature's own menu. It returns when the user exits or the
// input ends. Boot must have been called.
func (b *Brick) Setup(ctx context.Context, con *console.Console) error {
	invalidated := false
	leave := func() error {
		if invalidated {
			return b.fs.Save()
		}
		return b.Persist()
	}

	b.printMenu(con)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		con.Println()
		line, err := con.ReadLine("Select: ")
		if errors.Is(err, io.EOF) {
			return leave()
		}
		if err != nil {
			return err
		}

		switch line {
		case "1":
			con.Println("RTC data:")
			for _, f := range b.features {
				con.Printf(" %s:\n", f.Name())
				f.DescribeRetained(con.Writer())
			}
		case "2":
			con.Println("FS data:")
			for _, f := range b.features {
				con.Printf(" %s:\n", f.Name())
				f.DescribePersistent(con.Writer())
			}
		case "3":
			if err := b.rtc.Invalidate(); err != nil {
				con.Printf("Failed to reset RTC memory: %v\n", err)
				break
			}
			invalidated = true
			con.Println("RTC memory invalidated, next boot is a cold start.")
		case "4":
			if err := b.featureMenu(ctx, con); errors.Is(err, io.EOF) {
				return leave()
			} else if err != nil {
				return err
			}
			b.printMenu(con)
		case "9":
			con.Println("Leaving setup.")
			return leave()
		default:
			con.Println("Invalid input!")
			b.printMenu(con)
		}
	}
}

func (b *Brick) featureMenu(ctx context.Context, con *console.Console) error {
	for i, f := range b.features {
		con.Printf("%d) %s (v%d)\n", i+1, f.Name(), f.Version())
	}
	line, err := con.ReadLine("Feature: ")
	if err != nil {
		return err
	}
	idx, err := strconv.Atoi(line)
	if err != nil || idx < 1 || idx > len(b.features) {
		con.Println("Invalid feature!")
		return nil
	}

	f := b.features[idx-1]
	if err := f.RunSetupMenu(ctx, con); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if err := b.fs.Save(); err != nil {
		con.Printf("Failed to save defaults: %v\n", err)
	}
	return nil
}

func (b *Brick) printMenu(con *console.Console) {
	con.Println("1) Print RTC data")
	con.Println("2) Print FS data")
	con.Println("3) Reset RTC memory")
	con.Println("4) Feature setup")
	con.Println("9) Exit")
}
