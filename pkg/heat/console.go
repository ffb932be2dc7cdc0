package heat

import (
	"context"
	"errors"
	"io"

	"github.com/itohio/brickheat/pkg/console"
)

// RunSetupMenu is the bench menu of the feature. It returns when the user
// selects 9 or the input ends (io.EOF).
func (f *Feature) RunSetupMenu(ctx context.Context, con *console.Console) error {
	printMenu(con)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		con.Println()
		choice, err := con.ReadInt("Select: ")
		if err != nil && !errors.Is(err, console.ErrInvalidNumber) {
			return err
		}
		if err != nil {
			choice = -1
		}

		switch choice {
		case 1:
			err = f.setDefaultOffState(con)
		case 2:
			con.Println("Turning heat on...")
			err = f.heater.WriteOn(f.data.OffPolarity)
		case 3:
			con.Println("Turning heat off...")
			err = f.heater.WriteOff(f.data.OffPolarity)
		case 4:
			err = f.benchRead(ctx, con, 0)
		case 5:
			err = f.benchRead(ctx, con, f.data.Correction)
		case 6:
			err = f.setDefaultPrecision(ctx, con)
		case 7:
			err = f.setDefaultCorrection(con)
		case 9:
			con.Println("Returning to MainMenu!")
			return nil
		default:
			con.Println("Invalid input!")
			printMenu(con)
			continue
		}

		switch {
		case err == nil:
		case errors.Is(err, errInvalidValue):
			printMenu(con)
		case errors.Is(err, io.EOF), ctx.Err() != nil:
			return err
		default:
			con.Printf("Failed: %v\n", err)
		}
	}
}

var errInvalidValue = errors.New("invalid value")

func (f *Feature) setDefaultOffState(con *console.Console) error {
	v, err := con.ReadInt("Enter 0 (low-signal) or 1 (high-signal): ")
	if err != nil && !errors.Is(err, console.ErrInvalidNumber) {
		return err
	}
	if err != nil || !ValidOffPolarity(v) {
		con.Println("Invalid state!")
		return errInvalidValue
	}

	f.fs.Set(keyOffPolarity, uint8(v))
	f.data.OffPolarity = uint8(v)
	con.Println("Turning heat off...")
	if err := f.heater.WriteOff(f.data.OffPolarity); err != nil {
		return err
	}
	con.Printf("Set off-state to: %d\n", v)
	return nil
}

func (f *Feature) benchRead(ctx context.Context, con *console.Console, correction float32) error {
	if !f.data.SensorConnected {
		con.Println("No TempSensor detected...")
		return nil
	}

	con.Println("Requesting Temperature...")
	if err := f.sensor.ScheduleConversionFor(ctx, f.data.SensorAddress, true); err != nil {
		return err
	}
	v, err := f.sensor.ReadCelsius(f.data.SensorAddress)
	if err != nil {
		return err
	}
	con.Printf("%s: %.2f\n", f.sensorName, v+correction)
	return nil
}

func (f *Feature) setDefaultPrecision(ctx context.Context, con *console.Console) error {
	v, err := con.ReadInt("Enter precision (8 to 12): ")
	if err != nil && !errors.Is(err, console.ErrInvalidNumber) {
		return err
	}
	if err != nil || !ValidPrecision(v) {
		con.Println("Invalid precision!")
		return errInvalidValue
	}

	f.fs.Set(keyPrecision, uint8(v))
	f.data.Precision = uint8(v)
	if f.data.SensorConnected {
		con.Println("Configuring sensor...")
		if err := f.sensor.SetPrecision(ctx, f.data.Precision); err != nil {
			return err
		}
	}
	con.Printf("Set precision to: %d\n", v)
	return nil
}

func (f *Feature) setDefaultCorrection(con *console.Console) error {
	v, err := con.ReadFloat("Enter correction value: ")
	if err != nil && !errors.Is(err, console.ErrInvalidNumber) {
		return err
	}
	if err != nil {
		con.Println("Invalid correction value!")
		return errInvalidValue
	}

	f.fs.Set(keyCorrection, v)
	f.data.Correction = v
	con.Printf("Set correction value to: %.2f\n", v)
	return nil
}

func printMenu(con *console.Console) {
	con.Println("1) Set Heat Default Off State")
	con.Println("2) Turn Heat ON")
	con.Println("3) Turn Heat OFF")
	con.Println("4) Read Temp Sensor (raw)")
	con.Println("5) Read Temp Sensor (with corr)")
	con.Println("6) Set Temp Default Precision")
	con.Println("7) Set Temp Sensor Corr")
	con.Println("9) Return to MainMenu")
}
