package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cafestock/internal/httpapi"
	"github.com/MarkoPoloResearchLab/cafestock/internal/scheduler"
	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
)

const (
	flagDate          = "date"
	flagMode          = "mode"
	flagIncludeHidden = "include-hidden"
	flagNote          = "note"
	flagForce         = "force"
	flagRecipients    = "recipients"
	flagType          = "type"
	flagReason        = "reason"
	flagQty           = "qty"
	flagBaseUnits     = "base-units"
	flagVendor        = "vendor"
	flagProductName   = "product-name"
	flagBaseUnit      = "base-unit"
	flagLocation      = "location"
	flagWithScheduler = "with-scheduler"
	flagRunNow        = "run-now"
)

func newServeCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			withScheduler, _ := cmd.Flags().GetBool(flagWithScheduler)
			return app.withRuntime(ctx, func(ctx context.Context, rt *runtime) error {
				if withScheduler {
					daily, err := app.newScheduler(rt)
					if err != nil {
						return err
					}
					if err := daily.Start(ctx); err != nil {
						return err
					}
					defer daily.Stop()
				}
				return httpapi.Run(ctx, app.config.HTTP, rt.service, rt.logger)
			})
		},
	}
	cmd.Flags().String(flagListenAddr, ":8080", "HTTP listen address")
	cmd.Flags().Bool(flagWithScheduler, false, "also run the daily scheduler in this process")
	return cmd
}

func newScheduleCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the daily usage, reorder and notification job on a cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			runNow, _ := cmd.Flags().GetBool(flagRunNow)
			return app.withRuntime(ctx, func(ctx context.Context, rt *runtime) error {
				daily, err := app.newScheduler(rt)
				if err != nil {
					return err
				}
				if runNow {
					report, err := daily.RunDaily(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(app.out, "usage %s: %d rows, %d flagged, notified=%t\n", report.UsageDate, report.Usage.RowsWritten, report.Reorder.Flagged(), report.Notified)
					return nil
				}
				if err := daily.Start(ctx); err != nil {
					return err
				}
				<-ctx.Done()
				daily.Stop()
				return nil
			})
		},
	}
	cmd.Flags().Bool(flagRunNow, false, "run the daily job once and exit")
	return cmd
}

func (app *application) newScheduler(rt *runtime) (*scheduler.Scheduler, error) {
	return scheduler.New(rt.service, scheduler.Config{
		Schedule:   app.config.Schedule,
		Location:   rt.service.Calendar().Location(),
		Recipients: app.config.NotifyRecipients,
		Cooldown:   app.config.NotifyCooldown,
	}, rt.logger)
}

func newUsageCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Explode a day's sales into theoretical ingredient usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rawDate, _ := cmd.Flags().GetString(flagDate)
			rawMode, _ := cmd.Flags().GetString(flagMode)
			mode, err := inventory.ParseWriteMode(rawMode)
			if err != nil {
				return err
			}
			return app.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				date := rt.service.Today().AddDays(-1)
				if strings.TrimSpace(rawDate) != "" {
					date, err = inventory.ParseBusinessDate(rawDate)
					if err != nil {
						return err
					}
				}
				result, err := rt.service.RecomputeUsage(ctx, date, mode)
				if err != nil {
					return err
				}
				printUsage(app.out, result)
				return nil
			})
		},
	}
	cmd.Flags().String(flagDate, "", "business date YYYY-MM-DD (default yesterday)")
	cmd.Flags().String(flagMode, string(inventory.WriteModeReplace), "append or replace")
	return cmd
}

func newReorderCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder",
		Short: "Recompute the reorder snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				result, err := rt.service.RecomputeReorder(ctx)
				if err != nil {
					return err
				}
				printShoppingRows(app.out, fmt.Sprintf("Reorder snapshot (%d flagged)", result.Flagged()), result.Rows)
				printWarnings(app.out, "negative on-hand", result.NegativeOnHand)
				printWarnings(app.out, "invalid rows", result.InvalidRows)
				return nil
			})
		},
	}
}

func newShoppingListCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shopping-list",
		Short: "Show today's merged shopping list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			includeHidden, _ := cmd.Flags().GetBool(flagIncludeHidden)
			return app.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				list, err := rt.service.ShoppingList(ctx, includeHidden)
				if err != nil {
					return err
				}
				printShoppingRows(app.out, fmt.Sprintf("Shopping list for %s", list.Date), list.Items)
				printWarnings(app.out, "hidden", list.Hidden)
				printWarnings(app.out, "invalid rows", list.InvalidRows)
				return nil
			})
		},
	}
	cmd.Flags().Bool(flagIncludeHidden, false, "include lines hidden by today's actions")
	return cmd
}

func newActionCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "action <upc> <purchased|dismissed|snoozed|undo>",
		Short: "Record a shopping list action",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawDate, _ := cmd.Flags().GetString(flagDate)
			note, _ := cmd.Flags().GetString(flagNote)
			return app.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				event, err := inventory.NewShoppingActionEvent(rawDate, args[0], args[1], note, app.config.Actor, rt.service.Today())
				if err != nil {
					return err
				}
				if err := rt.service.RecordAction(ctx, event); err != nil {
					return err
				}
				fmt.Fprintf(app.out, "%s %s on %s\n", event.UPC, event.Action, event.Date)
				return nil
			})
		},
	}
	cmd.Flags().String(flagDate, "", "business date YYYY-MM-DD (default today)")
	cmd.Flags().String(flagNote, "", "free-form note")
	return cmd
}

func newNotifyCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send the guarded reorder notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rawForce, _ := cmd.Flags().GetInt(flagForce)
			force, err := inventory.NewForceLevel(rawForce)
			if err != nil {
				return err
			}
			recipients, _ := cmd.Flags().GetStringSlice(flagRecipients)
			if len(recipients) == 0 {
				recipients = app.config.NotifyRecipients
			}
			return app.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				result, err := rt.service.SendReorderNotification(ctx, inventory.NotificationRequest{
					Actor:      app.config.Actor,
					Recipients: recipients,
					Force:      force,
					Cooldown:   app.config.NotifyCooldown,
				})
				if err != nil {
					return err
				}
				printNotification(app.out, result)
				return nil
			})
		},
	}
	cmd.Flags().Int(flagForce, 0, "0 respects both guards, 1 bypasses the daily guard, 2 bypasses the cooldown too")
	cmd.Flags().StringSlice(flagRecipients, nil, "recipients (default notify.recipients)")
	return cmd
}

func newOnHandCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "on-hand [upc]",
		Short: "Reconcile on-hand stock for one product or the whole catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawDate, _ := cmd.Flags().GetString(flagDate)
			return app.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				if len(args) == 0 {
					readings, err := rt.service.OnHandReport(ctx)
					if err != nil {
						return err
					}
					printOnHand(app.out, readings)
					return nil
				}
				upc, err := inventory.NewUPC(args[0])
				if err != nil {
					return err
				}
				var onDate inventory.BusinessDate
				if strings.TrimSpace(rawDate) != "" {
					if onDate, err = inventory.ParseBusinessDate(rawDate); err != nil {
						return err
					}
				}
				reading, err := rt.service.OnHand(ctx, upc, onDate)
				if err != nil {
					return err
				}
				printOnHand(app.out, []inventory.OnHand{reading})
				return nil
			})
		},
	}
	cmd.Flags().String(flagDate, "", "only count activity up to this business date")
	return cmd
}

func newSalesCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sales",
		Short: "Sales ingestion",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import point-of-sale lines (date,menu_item,modifiers,qty,source)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			lines, err := readSaleLines(file)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return app.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				result, err := rt.service.IngestSales(ctx, lines)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.out, "read %d lines, wrote %d sales rows\n", result.LinesRead, result.RowsWritten)
				return nil
			})
		},
	})
	return cmd
}

func newAdjustCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adjust <upc> <signed base units>",
		Short: "Record a stock correction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			upc, err := inventory.NewUPC(args[0])
			if err != nil {
				return err
			}
			delta, err := inventory.NewQuantity(args[1])
			if err != nil {
				return err
			}
			adjustmentType, _ := cmd.Flags().GetString(flagType)
			reason, _ := cmd.Flags().GetString(flagReason)
			rawDate, _ := cmd.Flags().GetString(flagDate)
			event := inventory.AdjustmentEvent{
				UPC:            upc,
				BaseUnitsDelta: delta,
				AdjustmentType: adjustmentType,
				Reason:         reason,
				Actor:          app.config.Actor,
			}
			if strings.TrimSpace(rawDate) != "" {
				if event.Date, err = inventory.ParseBusinessDate(rawDate); err != nil {
					return err
				}
			}
			return app.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				if err := rt.service.RecordAdjustment(ctx, event); err != nil {
					return err
				}
				fmt.Fprintf(app.out, "adjusted %s by %s\n", upc, delta)
				return nil
			})
		},
	}
	cmd.Flags().String(flagType, "count", "adjustment type, e.g. count, waste, spill")
	cmd.Flags().String(flagReason, "", "reason for the correction")
	cmd.Flags().String(flagDate, "", "business date YYYY-MM-DD (default today)")
	return cmd
}

func newPurchaseCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purchase <upc>",
		Short: "Record a purchase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upc, err := inventory.NewUPC(args[0])
			if err != nil {
				return err
			}
			rawQty, _ := cmd.Flags().GetString(flagQty)
			rawBaseUnits, _ := cmd.Flags().GetString(flagBaseUnits)
			vendor, _ := cmd.Flags().GetString(flagVendor)
			qty, err := inventory.NewQuantity(rawQty)
			if err != nil {
				return err
			}
			baseUnits, err := inventory.NewQuantity(rawBaseUnits)
			if err != nil {
				return err
			}
			return app.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				err := rt.service.RecordPurchase(ctx, inventory.PurchaseEvent{
					UPC:            upc,
					QtyPurchased:   qty,
					BaseUnitsAdded: baseUnits,
					Vendor:         vendor,
					Actor:          app.config.Actor,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(app.out, "recorded purchase of %s\n", upc)
				return nil
			})
		},
	}
	cmd.Flags().String(flagQty, "", "purchased quantity in purchase units")
	cmd.Flags().String(flagBaseUnits, "", "base units added to stock")
	cmd.Flags().String(flagVendor, "", "vendor")
	return cmd
}

func newManualRowCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manual-row",
		Short: "Edit manager-entered shopping rows",
	}
	set := &cobra.Command{
		Use:   "set <upc>",
		Short: "Add or replace the manual row for a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upc, err := inventory.NewUPC(args[0])
			if err != nil {
				return err
			}
			rawQty, _ := cmd.Flags().GetString(flagQty)
			qty, err := inventory.NewQuantity(rawQty)
			if err != nil {
				return err
			}
			row := inventory.ShoppingRow{UPC: upc, QtyToOrder: qty}
			row.ProductName, _ = cmd.Flags().GetString(flagProductName)
			row.BaseUnit, _ = cmd.Flags().GetString(flagBaseUnit)
			row.PreferredVendor, _ = cmd.Flags().GetString(flagVendor)
			row.DefaultLocation, _ = cmd.Flags().GetString(flagLocation)
			row.Note, _ = cmd.Flags().GetString(flagNote)
			return app.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				if err := rt.service.SetManualRow(ctx, row); err != nil {
					return err
				}
				fmt.Fprintf(app.out, "saved manual row for %s\n", upc)
				return nil
			})
		},
	}
	set.Flags().String(flagQty, "", "quantity to order in base units")
	set.Flags().String(flagProductName, "", "product name")
	set.Flags().String(flagBaseUnit, "", "base unit")
	set.Flags().String(flagVendor, "", "preferred vendor")
	set.Flags().String(flagLocation, "", "default location")
	set.Flags().String(flagNote, "", "note")

	remove := &cobra.Command{
		Use:   "remove <upc>",
		Short: "Remove the manual row for a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upc, err := inventory.NewUPC(args[0])
			if err != nil {
				return err
			}
			return app.withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				removed, err := rt.service.RemoveManualRow(ctx, upc)
				if err != nil {
					return err
				}
				if !removed {
					rt.logger.Info("no manual row to remove", zap.String("upc", upc.String()))
					fmt.Fprintf(app.out, "no manual row for %s\n", upc)
					return nil
				}
				fmt.Fprintf(app.out, "removed manual row for %s\n", upc)
				return nil
			})
		},
	}
	cmd.AddCommand(set, remove)
	return cmd
}
