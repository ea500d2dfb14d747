package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/listenupapp/testimonials/internal/di/providers"
	"github.com/listenupapp/testimonials/internal/domain"
	"github.com/listenupapp/testimonials/internal/id"
	"github.com/listenupapp/testimonials/internal/util"
)

func newTagCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Manage tags and testimonial mappings",
	}
	cmd.AddCommand(newTagInitCommand(ctx))
	cmd.AddCommand(newTagListCommand(ctx))
	cmd.AddCommand(newTagMappingsCommand(ctx))
	cmd.AddCommand(newTagCreateCommand(ctx))
	return cmd
}

func newTagInitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the default tags that do not exist yet",
		Args:  cobra.NoArgs,
		RunE: ctx.run(func(cmd *cobra.Command, args []string) error {
			return seedTags(cmd.Context(), ctx, cmd.OutOrStdout())
		}),
	}
}

func newTagListCommand(ctx *commandContext) *cobra.Command {
	var typ string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tags",
		Args:  cobra.NoArgs,
		RunE: ctx.run(func(cmd *cobra.Command, args []string) error {
			tagType := domain.TagType(strings.ToLower(typ))
			if tagType != "" && !tagType.Valid() {
				return fmt.Errorf("unknown tag type %q", typ)
			}

			st, err := invoke[*providers.StoreHandle](ctx)
			if err != nil {
				return err
			}
			tags, err := st.ListTags(cmd.Context(), tagType)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(tags) == 0 {
				fmt.Fprintln(out, "No tags. Run `curator tag init` to create the defaults.")
				return nil
			}
			rows := make([][]string, 0, len(tags))
			for _, t := range tags {
				rows = append(rows, []string{t.ID, t.Name, string(t.Type), t.TargetID, strconv.Itoa(t.Order), yesNo(t.Active)})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Type", "Target", "Order", "Active"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		}),
	}
	cmd.Flags().StringVar(&typ, "type", "", "Only list tags of this type (program, experience, solution, featured, custom)")
	return cmd
}

func newTagMappingsCommand(ctx *commandContext) *cobra.Command {
	var testimonialID string

	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Show testimonial mappings",
		Args:  cobra.NoArgs,
		RunE: ctx.run(func(cmd *cobra.Command, args []string) error {
			st, err := invoke[*providers.StoreHandle](ctx)
			if err != nil {
				return err
			}

			var mappings []*domain.Mapping
			if testimonialID != "" {
				m, err := st.GetMapping(cmd.Context(), testimonialID)
				if err != nil {
					return err
				}
				mappings = append(mappings, m)
			} else {
				all, err := st.ListMappings(cmd.Context())
				if err != nil {
					return err
				}
				for _, m := range all {
					mappings = append(mappings, m)
				}
				slices.SortFunc(mappings, func(a, b *domain.Mapping) int {
					if a.Priority != b.Priority {
						return b.Priority - a.Priority
					}
					return strings.Compare(a.TestimonialID, b.TestimonialID)
				})
			}

			out := cmd.OutOrStdout()
			if len(mappings) == 0 {
				fmt.Fprintln(out, "No mappings.")
				return nil
			}
			rows := make([][]string, 0, len(mappings))
			for _, m := range mappings {
				rows = append(rows, []string{
					m.TestimonialID,
					strconv.Itoa(m.Priority),
					strings.Join(m.Programs, ", "),
					strings.Join(m.Experiences, ", "),
					strings.Join(m.Solutions, ", "),
					strings.Join(m.FeaturedSpaces, ", "),
					yesNo(m.AutoTagged),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Testimonial", "Priority", "Programs", "Experiences", "Solutions", "Featured", "Auto"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		}),
	}
	cmd.Flags().StringVar(&testimonialID, "id", "", "Show only this testimonial's mapping")
	return cmd
}

func newTagCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		tag      domain.Tag
		typ      string
		inactive bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a tag",
		Args:  cobra.ExactArgs(1),
		RunE: ctx.run(func(cmd *cobra.Command, args []string) error {
			tag.Name = strings.TrimSpace(args[0])
			tag.Type = domain.TagType(strings.ToLower(typ))
			tag.Active = !inactive
			if tag.ID == "" {
				tag.ID = util.Slug(tag.Name)
			}
			if tag.ID == "" {
				tag.ID = id.MustGenerate("tag")
			}

			st, err := invoke[*providers.StoreHandle](ctx)
			if err != nil {
				return err
			}
			if err := st.CreateTag(cmd.Context(), &tag); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s tag %s\n", tag.Type, tag.ID)
			return nil
		}),
	}

	flags := cmd.Flags()
	flags.StringVar(&tag.ID, "id", "", "Tag id (default: slug of the name)")
	flags.StringVar(&typ, "type", string(domain.TagTypeCustom), "Tag type (program, experience, solution, featured, custom)")
	flags.StringVar(&tag.TargetID, "target", "", "Page or slot the tag routes to")
	flags.IntVar(&tag.Order, "order", 0, "Display order within its type")
	flags.BoolVar(&inactive, "inactive", false, "Create the tag inactive")
	return cmd
}
